package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "reconcile"})

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, ".", flag.DefValue)
}

func TestReconcileCmd_Flags(t *testing.T) {
	cmd := newReconcileCmd(new(string))
	assert.Equal(t, "100", cmd.Flags().Lookup("limit").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("tx"))
}

func TestExecute_UnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"launch"})
	assert.Equal(t, 1, execute(cmd))
}
