package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcQuickMatch = "quick_match"

	// RpcCreateInvite is the Nakama RPC id for generating a signed table invite token.
	RpcCreateInvite = "create_invite"

	// RpcRedeemInvite is the Nakama RPC id for resolving an invite token back to a match id.
	RpcRedeemInvite = "redeem_invite"

	// MatchNameNobleDynasty is the authoritative match handler name registered with Nakama.
	MatchNameNobleDynasty = "nobledynasty_match"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame       int64 = 1
	OpStartingChoice  int64 = 2
	OpCastVote        int64 = 3
	OpConfirmElection int64 = 4
	OpSelectRole      int64 = 5
	OpApplyPolicy     int64 = 6
	OpPlaceServant    int64 = 7
	OpResolveLocation int64 = 8
	OpEndTurn         int64 = 9
	OpRequestSnapshot int64 = 10

	// Server -> Client events
	OpPlayerJoined          int64 = 101
	OpPlayerLeft            int64 = 102
	OpGameStarted           int64 = 103
	OpStartingChoiceApplied int64 = 104
	OpElectionStarted       int64 = 105
	OpVoteCast              int64 = 106
	OpMayorElected          int64 = 107
	OpRoleSelected          int64 = 108
	OpPolicyEnacted         int64 = 109
	OpServantPlaced         int64 = 110
	OpLocationResolved      int64 = 111
	OpTurnEnded             int64 = 112
	OpRoundEnded            int64 = 113
	OpGameEnded             int64 = 114
	OpStateSnapshot         int64 = 115
	OpGameError             int64 = 116
)
