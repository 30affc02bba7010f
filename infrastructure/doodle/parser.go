package doodle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/CedricFinance/pollwatch/domain/entities"
)

var ErrNoPollData = errors.New("document does not contain poll data")

// The poll page ships its data as an argument of this call in an inline script.
var pollDataPattern = regexp.MustCompile(`\$\.extend\(true, doodleJS\.data, (.*)\);`)

type pageData struct {
	Poll *entities.Snapshot `json:"poll"`
}

type Parser struct{}

func (Parser) Parse(document []byte) (*entities.Snapshot, error) {
	match := pollDataPattern.FindSubmatch(document)
	if match == nil {
		return nil, ErrNoPollData
	}

	var data pageData
	if err := json.Unmarshal(match[1], &data); err != nil {
		return nil, fmt.Errorf("failed to decode poll data: %w", err)
	}

	if data.Poll == nil {
		return nil, ErrNoPollData
	}

	return data.Poll, nil
}
