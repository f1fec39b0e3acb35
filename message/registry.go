package message

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownKind is returned by New for kinds outside the closed set.
var ErrUnknownKind = errors.New("unknown message kind")

type kindInfo struct {
	name string
	new  func() Message
}

var _kinds = map[Kind]kindInfo{
	KindSubmitLevel:       {"SubmitLevel", func() Message { return &SubmitLevelMessage{} }},
	KindLevelSubmitted:    {"LevelSubmitted", func() Message { return &LevelSubmittedMessage{} }},
	KindRequestLevels:     {"RequestLevels", func() Message { return &RequestLevelsMessage{} }},
	KindLevels:            {"Levels", func() Message { return &LevelsMessage{} }},
	KindRequestLevelData:  {"RequestLevelData", func() Message { return &RequestLevelDataMessage{} }},
	KindLevelData:         {"LevelData", func() Message { return &LevelDataMessage{} }},
	KindRequestScoreboard: {"RequestScoreboard", func() Message { return &RequestScoreboardMessage{} }},
	KindScoreboard:        {"Scoreboard", func() Message { return &ScoreboardMessage{} }},
	KindCheckName:         {"CheckName", func() Message { return &CheckNameMessage{} }},
	KindConfirmName:       {"ConfirmName", func() Message { return &ConfirmNameMessage{} }},
	KindSubmitScore:       {"SubmitScore", func() Message { return &SubmitScoreMessage{} }},
}

// New returns an empty message of kind k, ready to be decoded into.
func New(k Kind) (Message, error) {
	info, ok := _kinds[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	return info.new(), nil
}

// Known reports whether k belongs to the closed set.
func Known(k Kind) bool {
	_, ok := _kinds[k]
	return ok
}

func (k Kind) String() string {
	if info, ok := _kinds[k]; ok {
		return info.name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// KindOf resolves the kind of a message type without needing a value:
//
//	message.KindOf[*message.ScoreboardMessage]()
func KindOf[T Message]() Kind {
	var zero T
	return zero.Kind()
}
