package escrow

// bountyEscrowABI - интерфейс контракта эскроу баунти.
const bountyEscrowABI = `[
  {"type":"function","name":"createBounty","stateMutability":"nonpayable","inputs":[
    {"name":"title","type":"string"},
    {"name":"category","type":"string"},
    {"name":"value","type":"uint256"},
    {"name":"tokenAddress","type":"address"},
    {"name":"paymentStructure","type":"uint8"},
    {"name":"upfrontAmount","type":"uint256"},
    {"name":"completionAmount","type":"uint256"}],
   "outputs":[{"name":"bountyId","type":"uint256"}]},
  {"type":"function","name":"createMilestones","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"},
    {"name":"dueDates","type":"uint256[]"},
    {"name":"amounts","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"placeBid","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"assignBounty","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"},
    {"name":"bidder","type":"address"},
    {"name":"technicalReviewer","type":"address"},
    {"name":"finalApprover","type":"address"}],"outputs":[]},
  {"type":"function","name":"approveMilestone","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"},
    {"name":"milestoneId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approveCompletion","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelBounty","stateMutability":"nonpayable","inputs":[
    {"name":"bountyId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"BountyCreated","anonymous":false,"inputs":[
    {"name":"bountyId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true}]}
]`

// paymentStructureCode - значения enum PaymentStructure в контракте.
var paymentStructureCode = map[string]uint8{
	"Completion": 0,
	"Milestones": 1,
	"Split":      2,
}
