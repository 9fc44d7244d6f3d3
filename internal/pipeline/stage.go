package pipeline

import (
	"fmt"
	"strings"
)

// Stage is one named phase of a run. Stages complete strictly in the order
// they are declared.
type Stage int

const (
	StageExtraction Stage = iota
	StageDenoising
	StageUnblurring
	StageContrast
	StageDetection
	StageInsights
)

type stageInfo struct {
	id          string
	name        string
	description string
}

var stageTable = [...]stageInfo{
	StageExtraction: {"extraction", "Frame Extraction", "Extracting frames from video"},
	StageDenoising:  {"denoising", "Denoising", "Reducing noise and artifacts"},
	StageUnblurring: {"unblurring", "Motion Deblurring", "Enhancing motion clarity"},
	StageContrast:   {"contrast", "Contrast Enhancement", "Improving visual quality"},
	StageDetection:  {"detection", "Object Detection", "Detecting vehicles and elements"},
	StageInsights:   {"insights", "AI Analysis", "Generating traffic insights"},
}

// StageCount is the number of stages in every run.
const StageCount = len(stageTable)

// Stages returns the fixed stage ordering.
func Stages() []Stage {
	out := make([]Stage, StageCount)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

func (s Stage) valid() bool {
	return s >= 0 && int(s) < StageCount
}

// String returns the stable stage identifier.
func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageTable[s].id
}

// Name returns the display name.
func (s Stage) Name() string {
	if !s.valid() {
		return s.String()
	}
	return stageTable[s].name
}

// Description returns the one-line display description.
func (s Stage) Description() string {
	if !s.valid() {
		return ""
	}
	return stageTable[s].description
}

// ParseStage resolves a stage identifier.
func ParseStage(id string) (Stage, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for i, info := range stageTable {
		if info.id == id {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", id)
}

// MarshalText encodes the stage as its identifier.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage identifier.
func (s *Stage) UnmarshalText(text []byte) error {
	st, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStageList decodes a comma separated list of stage identifiers.
func ParseStageList(raw string) ([]Stage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]Stage, 0, len(parts))
	for _, part := range parts {
		st, err := ParseStage(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// JoinStages encodes stages as a comma separated identifier list.
func JoinStages(stages []Stage) string {
	ids := make([]string, len(stages))
	for i, st := range stages {
		ids[i] = st.String()
	}
	return strings.Join(ids, ",")
}

// IsPrefix reports whether stages is a prefix of the declared ordering.
func IsPrefix(stages []Stage) bool {
	if len(stages) > StageCount {
		return false
	}
	for i, st := range stages {
		if st != Stage(i) {
			return false
		}
	}
	return true
}
