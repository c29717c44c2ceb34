package analyzer

// 4-byte method selectors grouped by the transaction type they imply. The
// classifier labels a transaction with the first group whose selector appears
// in the input data, so order matters for inputs carrying several calls.
var patternSignatureOrder = []string{
	"deposit",
	"stake",
	"borrow",
	"swap",
	"bridge",
	"provide_liquidity",
	"remove_liquidity",
	"harvest",
	"mint",
	"leverage",
	"withdraw",
	"approve",
	"transfer",
}

var patternSignatures = map[string][]string{
	"deposit": {
		"0xd0e30db0", // deposit()
		"0xb6b55f25", // deposit(uint256)
		"0x47e7ef24", // deposit(address,uint256)
	},
	"stake": {
		"0xa694fc3a", // stake(uint256)
		"0x3a4b66f1", // stake()
	},
	"borrow": {
		"0xc5ebeaec", // borrow(uint256)
		"0x4b8a3529", // borrow(address,uint256)
	},
	"swap": {
		"0x38ed1739", // swapExactTokensForTokens
		"0x7ff36ab5", // swapExactETHForTokens
		"0x128acb08", // swap(address,bool,int256,uint160,bytes)
	},
	"bridge": {
		"0x439370b1", // depositEth()
		"0xb1a1a882", // depositETH(uint32,bytes)
	},
	"provide_liquidity": {
		"0xe8e33700", // addLiquidity
		"0xf305d719", // addLiquidityETH
	},
	"remove_liquidity": {
		"0xbaa2abde", // removeLiquidity
		"0x02751cec", // removeLiquidityETH
	},
	"harvest": {
		"0x4641257d", // harvest()
		"0x3d18b912", // getReward()
	},
	"mint": {
		"0xa0712d68", // mint(uint256)
		"0x40c10f19", // mint(address,uint256)
	},
	"leverage": {
		"0xab9c4b5d", // flashLoan(address,address[],uint256[],uint256[],address,bytes,uint16)
	},
	"withdraw": {
		"0x2e1a7d4d", // withdraw(uint256)
	},
	"approve": {
		"0x095ea7b3", // approve(address,uint256)
	},
	"transfer": {
		"0xa9059cbb", // transfer(address,uint256)
	},
}

// allocateSelector marks treasury calls that distribute funds outward rather
// than rebalance them.
const allocateSelector = "0x7ca3c7c2"

// Treasury operation selectors, carried over from the production watch list.
var treasuryOperationSigs = map[string]bool{
	"0x6e553f65":     true, // rebalance
	allocateSelector: true, // allocate
}

// Event topics recognized as DEX swaps when scanning receipt logs.
var swapEventTopics = map[string]bool{
	// Swap(address,uint256,uint256,uint256,uint256,address)
	"0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822": true,
	// TokenExchange(address,uint256,uint256,uint256,uint256)
	"0x8b3e96f2b889fa771c53c981b40daf005f63f637f1869f707052d15a3dd97140": true,
}
