package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/onein50million/counter-attack/internal/clash"
	"github.com/onein50million/counter-attack/internal/combat"
	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/state"
)

// ErrInvalidTuning is returned for tuning values the simulation cannot run with.
var ErrInvalidTuning = errors.New("config: invalid tuning")

// maxInputDelay keeps delayed inputs inside a single input packet.
const maxInputDelay = 16

// Tuning holds the gameplay constants both peers must agree on.
type Tuning struct {
	FrameDuration   frame.Seconds `json:"frame_duration" yaml:"frame_duration"`
	BaseStaminaLoss float64       `json:"base_stamina_loss" yaml:"base_stamina_loss"`
	ClashLength     frame.Seconds `json:"clash_length" yaml:"clash_length"`
	FinalClashLives uint8         `json:"final_clash_lives" yaml:"final_clash_lives"`
	Attack          state.Attack  `json:"attack" yaml:"attack"`
	InputDelay      int           `json:"input_delay" yaml:"input_delay"`
	MaxPrediction   int           `json:"max_prediction" yaml:"max_prediction"`
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		FrameDuration:   frame.DefaultFrameDuration,
		BaseStaminaLoss: combat.DefaultBaseStaminaLoss,
		ClashLength:     clash.DefaultClashLength,
		FinalClashLives: clash.DefaultLives,
		Attack:          combat.DefaultAttack,
		InputDelay:      0,
		MaxPrediction:   rollback.DefaultMaxPrediction,
	}
}

// LoadTuning reads a YAML tuning file. An empty path yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	tuning, err := ParseTuning(data)
	if err != nil {
		return Tuning{}, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return tuning, nil
}

// ParseTuning decodes YAML over the defaults, so missing keys keep their
// stock values, and validates the result. Unknown keys are rejected.
func ParseTuning(data []byte) (Tuning, error) {
	tuning := DefaultTuning()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&tuning); err != nil {
			return Tuning{}, fmt.Errorf("decode tuning: %w", err)
		}
	}
	if err := tuning.Validate(); err != nil {
		return Tuning{}, err
	}
	return tuning, nil
}

// Validate reports the first out-of-range value.
func (t Tuning) Validate() error {
	switch {
	case !(t.FrameDuration > 0) || math.IsInf(float64(t.FrameDuration), 0):
		return fmt.Errorf("%w: frame_duration must be positive, got %v", ErrInvalidTuning, t.FrameDuration)
	case !(t.BaseStaminaLoss >= 0 && t.BaseStaminaLoss <= 1):
		return fmt.Errorf("%w: base_stamina_loss must be within [0, 1], got %v", ErrInvalidTuning, t.BaseStaminaLoss)
	case !(t.ClashLength > 0):
		return fmt.Errorf("%w: clash_length must be positive, got %v", ErrInvalidTuning, t.ClashLength)
	case t.FinalClashLives < 1:
		return fmt.Errorf("%w: final_clash_lives must be at least 1", ErrInvalidTuning)
	case !(t.Attack.StartupTime > 0):
		return fmt.Errorf("%w: attack.startup must be positive, got %v", ErrInvalidTuning, t.Attack.StartupTime)
	case !(t.Attack.BlockGrace >= 0):
		return fmt.Errorf("%w: attack.block_grace must not be negative, got %v", ErrInvalidTuning, t.Attack.BlockGrace)
	case !(t.Attack.RecoverTime >= 0):
		return fmt.Errorf("%w: attack.recover must not be negative, got %v", ErrInvalidTuning, t.Attack.RecoverTime)
	case t.InputDelay < 0 || t.InputDelay > maxInputDelay:
		return fmt.Errorf("%w: input_delay must be within [0, %d], got %d", ErrInvalidTuning, maxInputDelay, t.InputDelay)
	case t.MaxPrediction < 1:
		return fmt.Errorf("%w: max_prediction must be at least 1, got %d", ErrInvalidTuning, t.MaxPrediction)
	}
	return nil
}

// Fingerprint hashes every value that affects the simulation. Peers exchange
// it during the handshake and refuse to play with different tuning.
func (t Tuning) Fingerprint() uint64 {
	var buf []byte
	for _, v := range []float64{
		float64(t.FrameDuration),
		t.BaseStaminaLoss,
		float64(t.ClashLength),
		float64(t.Attack.StartupTime),
		float64(t.Attack.BlockGrace),
		float64(t.Attack.RecoverTime),
	} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	buf = append(buf, t.FinalClashLives)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.InputDelay))
	return xxhash.Sum64(buf)
}

func (t Tuning) Timebase() frame.Timebase {
	return frame.NewTimebase(t.FrameDuration)
}

func (t Tuning) Combat() combat.Tuning {
	return combat.Tuning{Attack: t.Attack, BaseStaminaLoss: t.BaseStaminaLoss}
}

func (t Tuning) Clash() clash.Tuning {
	return clash.Tuning{ClashLength: t.ClashLength, Lives: t.FinalClashLives}
}
