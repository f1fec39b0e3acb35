package message

// SubmitLevelMessage uploads a level. Answered by LevelSubmittedMessage.
type SubmitLevelMessage struct {
	Header
	Name string `codec:"name"`
	Data string `codec:"data"`
}

func (*SubmitLevelMessage) Kind() Kind { return KindSubmitLevel }

func NewSubmitLevel(name, data string) *SubmitLevelMessage {
	return &SubmitLevelMessage{Header: NewHeader(), Name: name, Data: data}
}

// LevelSubmittedMessage confirms a stored level and carries its new UUID.
type LevelSubmittedMessage struct {
	Header
	Name      string `codec:"name"`
	UUID      string `codec:"uuid"`
	Confirmed bool   `codec:"confirmed"`
}

func (*LevelSubmittedMessage) Kind() Kind { return KindLevelSubmitted }

func NewLevelSubmitted(name, uuid string, confirmed bool) *LevelSubmittedMessage {
	return &LevelSubmittedMessage{Header: NewHeader(), Name: name, UUID: uuid, Confirmed: confirmed}
}

// RequestLevelsMessage asks for up to Count level ids not listed in Exclude.
type RequestLevelsMessage struct {
	Header
	Count   int      `codec:"count"`
	Exclude []string `codec:"exclude"`
}

func (*RequestLevelsMessage) Kind() Kind { return KindRequestLevels }

func NewRequestLevels(count int, exclude []string) *RequestLevelsMessage {
	return &RequestLevelsMessage{Header: NewHeader(), Count: count, Exclude: exclude}
}

type LevelsMessage struct {
	Header
	UUIDs []string `codec:"uuids"`
}

func (*LevelsMessage) Kind() Kind { return KindLevels }

func NewLevels(uuids []string) *LevelsMessage {
	return &LevelsMessage{Header: NewHeader(), UUIDs: uuids}
}

type RequestLevelDataMessage struct {
	Header
	UUID string `codec:"uuid"`
}

func (*RequestLevelDataMessage) Kind() Kind { return KindRequestLevelData }

func NewRequestLevelData(uuid string) *RequestLevelDataMessage {
	return &RequestLevelDataMessage{Header: NewHeader(), UUID: uuid}
}

type LevelDataMessage struct {
	Header
	UUID string `codec:"uuid"`
	Data string `codec:"data"`
}

func (*LevelDataMessage) Kind() Kind { return KindLevelData }

func NewLevelData(uuid, data string) *LevelDataMessage {
	return &LevelDataMessage{Header: NewHeader(), UUID: uuid, Data: data}
}

type RequestScoreboardMessage struct {
	Header
	UUID string `codec:"uuid"`
}

func (*RequestScoreboardMessage) Kind() Kind { return KindRequestScoreboard }

func NewRequestScoreboard(uuid string) *RequestScoreboardMessage {
	return &RequestScoreboardMessage{Header: NewHeader(), UUID: uuid}
}

// ScoreboardMessage holds the top entries of a level, fastest first.
// Unused slots are nil.
type ScoreboardMessage struct {
	Header
	UUID       string                           `codec:"uuid"`
	Scoreboard [ScoreboardSize]*ScoreboardEntry `codec:"scoreboard"`
}

func (*ScoreboardMessage) Kind() Kind { return KindScoreboard }

func NewScoreboard(uuid string, entries [ScoreboardSize]*ScoreboardEntry) *ScoreboardMessage {
	return &ScoreboardMessage{Header: NewHeader(), UUID: uuid, Scoreboard: entries}
}

// CheckNameMessage asks the server to vet a player name.
type CheckNameMessage struct {
	Header
	Name string `codec:"name"`
}

func (*CheckNameMessage) Kind() Kind { return KindCheckName }

func NewCheckName(name string) *CheckNameMessage {
	return &CheckNameMessage{Header: NewHeader(), Name: name}
}

type ConfirmNameMessage struct {
	Header
	Name        string `codec:"name"`
	IsConfirmed bool   `codec:"confirmed"`
}

func (*ConfirmNameMessage) Kind() Kind { return KindConfirmName }

func NewConfirmName(name string, confirmed bool) *ConfirmNameMessage {
	return &ConfirmNameMessage{Header: NewHeader(), Name: name, IsConfirmed: confirmed}
}

// SubmitScoreMessage records a finished run. There is no reply.
type SubmitScoreMessage struct {
	Header
	UUID string `codec:"uuid"`
	Name string `codec:"name"`
	Time int64  `codec:"time"`
}

func (*SubmitScoreMessage) Kind() Kind { return KindSubmitScore }

func NewSubmitScore(uuid, name string, time int64) *SubmitScoreMessage {
	return &SubmitScoreMessage{Header: NewHeader(), UUID: uuid, Name: name, Time: time}
}
