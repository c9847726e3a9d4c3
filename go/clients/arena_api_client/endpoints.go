package arena_api_client

const (
	// Game endpoints
	CurrentRoundEndpoint  = "/game/current"
	GameStatsEndpoint     = "/game/stats"
	VoteNextJudgeEndpoint = "/game/vote-next-judge"

	// Voting endpoints
	VotingStatsEndpoint = "/voting/stats/%d"
	UserVoteEndpoint    = "/voting/vote/%d/%s"
	CastVoteEndpoint    = "/voting/vote"

	// Treasury endpoints
	RecentWinnersEndpoint = "/treasury/recent-winners?limit=%d"

	// Headers
	ClientIDHeader = "X-Arena-Client"
	WalletHeader   = "X-Wallet-Address"
)
