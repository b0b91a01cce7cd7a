package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/tileworld/pkg/camera"
	"github.com/jwebster45206/tileworld/pkg/state"
)

func main() {
	width := flag.Int("width", state.DefaultGridWidth, "grid width in cells")
	height := flag.Int("height", state.DefaultGridHeight, "grid height in cells")
	strict := flag.Bool("strict", false, "fail on warnings, skipped records and unknown keys")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <turn.json>...\n\nApplies each payload in order to a fresh world and reports what changed.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	v := NewPayloadValidator(state.Options{GridWidth: *width, GridHeight: *height}, os.Stdout)
	for _, filename := range flag.Args() {
		if err := v.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
	}

	if *strict && len(v.errors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed:\n%s\n", strings.Join(v.errors, "\n"))
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%d payload(s) applied cleanly to %s.\n", flag.NArg(), v.gs.LocationName)
}

// PayloadValidator replays turn payloads against one world, the same way the
// turn processor commits them.
type PayloadValidator struct {
	gs     *state.GameState
	out    io.Writer
	errors []string
}

func NewPayloadValidator(opts state.Options, out io.Writer) *PayloadValidator {
	gs := state.NewGameState(opts)
	camera.Follow(gs)
	return &PayloadValidator{gs: gs, out: out}
}

// turnReport is what gets printed per payload.
type turnReport struct {
	File     string       `yaml:"file"`
	Turn     int          `yaml:"turn"`
	Location string       `yaml:"location"`
	Player   state.Point  `yaml:"player"`
	Skipped  int          `yaml:"skipped,omitempty"`
	Unknown  []string     `yaml:"unknownKeys,omitempty"`
	Applied  state.Report `yaml:"applied"`
	Notices  []string     `yaml:"notices,omitempty"`
}

func (v *PayloadValidator) validateFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	payload, err := state.ParseTurnPayload(string(data))
	if err != nil {
		return fmt.Errorf("file %s: %w", filename, err)
	}
	unknown, err := unknownKeys(string(data))
	if err != nil {
		return fmt.Errorf("file %s: %w", filename, err)
	}

	logStart := len(v.gs.SystemLog)

	aged := state.AgeStatusEffects(v.gs.Parameters, v.gs.StatusEffects)
	v.gs.Parameters, v.gs.StatusEffects = aged.Parameters, aged.StatusEffects
	for _, msg := range aged.Messages {
		v.gs.AddSystemMessage(msg)
	}

	applied := state.NewDeltaWorker(v.gs, payload, slog.New(slog.DiscardHandler)).Apply()
	camera.Follow(v.gs)
	v.gs.Turn++

	rep := turnReport{
		File:     filename,
		Turn:     v.gs.Turn,
		Location: v.gs.LocationName,
		Player:   v.gs.PlayerPosition,
		Skipped:  payload.Skipped,
		Unknown:  unknown,
		Applied:  applied,
	}
	for _, msg := range v.gs.SystemLog[logStart:] {
		rep.Notices = append(rep.Notices, msg.Content)
	}

	for _, w := range aged.Warnings {
		v.addError(fmt.Sprintf("%s: %s", filename, w))
	}
	for _, w := range applied.Warnings {
		v.addError(fmt.Sprintf("%s: %s", filename, w))
	}
	if payload.Skipped > 0 {
		v.addError(fmt.Sprintf("%s: %d record(s) could not be decoded", filename, payload.Skipped))
	}
	for _, k := range unknown {
		v.addError(fmt.Sprintf("%s: unknown key '%s'", filename, k))
	}

	enc := yaml.NewEncoder(v.out)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return enc.Close()
}

func (v *PayloadValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

// unknownKeys lists top-level keys the payload decoder ignores.
func unknownKeys(text string) ([]string, error) {
	body, err := state.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode turn payload: %w", err)
	}

	known := payloadKeys()
	var out []string
	for k := range fields {
		if !slices.Contains(known, k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out, nil
}

func payloadKeys() []string {
	t := reflect.TypeFor[state.TurnPayload]()
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys = append(keys, name)
		}
	}
	return keys
}
