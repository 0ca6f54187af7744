// Package genesis maintains access to the genesis file which holds the
// parameters every node on the chain must agree on.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Default values for the chain parameters.
const (
	DefaultCoinbaseAmount               = 50
	DefaultBlockGenerationInterval      = time.Minute
	DefaultDifficultyAdjustmentInterval = 10
	DefaultMaxBlockTimeGap              = time.Minute
)

// Genesis represents the genesis file.
type Genesis struct {
	Date                         time.Time `json:"date"`
	CoinbaseAmount               uint64    `json:"coinbase_amount"`                // Reward for mining a block.
	BlockGenerationInterval      Duration  `json:"block_generation_interval"`      // Expected time between blocks.
	DifficultyAdjustmentInterval uint64    `json:"difficulty_adjustment_interval"` // Number of blocks between difficulty adjustments.
	MaxBlockTimeGap              Duration  `json:"max_block_time_gap"`             // Largest allowed timestamp gap between consecutive blocks.
}

// Default returns the genesis values used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:                         time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC),
		CoinbaseAmount:               DefaultCoinbaseAmount,
		BlockGenerationInterval:      Duration(DefaultBlockGenerationInterval),
		DifficultyAdjustmentInterval: DefaultDifficultyAdjustmentInterval,
		MaxBlockTimeGap:              Duration(DefaultMaxBlockTimeGap),
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Values missing from the file
// keep their defaults.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the parameters can drive a chain.
func (g Genesis) Validate() error {
	if g.CoinbaseAmount == 0 {
		return errors.New("coinbase amount must be greater than zero")
	}

	if g.DifficultyAdjustmentInterval == 0 {
		return errors.New("difficulty adjustment interval must be greater than zero")
	}

	if g.BlockGenerationInterval <= 0 {
		return errors.New("block generation interval must be greater than zero")
	}

	return nil
}

// =============================================================================

// Duration allows durations to be written as strings like "60s" in the
// genesis file.
type Duration time.Duration

// MarshalJSON implements the json.Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
