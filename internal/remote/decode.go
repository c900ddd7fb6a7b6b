package remote

import (
	"encoding/json"
	"fmt"

	"github.com/confapp/schedstore/internal/model"
)

// JSONDecoder decodes the JSON snapshot document into a Schedule. The
// document shape mirrors model.Schedule directly.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(body []byte) (*model.Schedule, error) {
	var schedule model.Schedule
	if err := json.Unmarshal(body, &schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule document: %w", err)
	}
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent schedule document: %w", err)
	}
	return &schedule, nil
}
