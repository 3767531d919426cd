package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"ptscore/domain/proficiency"
)

// AnalyteSpec describes the true distribution of one analyte in a synthetic round.
type AnalyteSpec struct {
	Name string  `json:"name"`
	Unit string  `json:"unit"`
	True float64 `json:"true"`
	SD   float64 `json:"sd"`
}

// RoundGeneratorConfig configures the proficiency round generator
type RoundGeneratorConfig struct {
	Labs        int           `json:"labs"`
	Analytes    []AnalyteSpec `json:"analytes"`
	OutlierRate float64       `json:"outlier_rate"` // share of results shifted by 5-8 SD
	MissingRate float64       `json:"missing_rate"` // share of results left unreported
	Original    bool          `json:"original"`     // attach an external classification
	Seed        int64         `json:"seed"`
}

// DefaultRoundConfig returns a small clinical chemistry round
func DefaultRoundConfig() RoundGeneratorConfig {
	return RoundGeneratorConfig{
		Labs: 20,
		Analytes: []AnalyteSpec{
			{Name: "Glucosa", Unit: "mg/dL", True: 100, SD: 4},
			{Name: "Colesterol", Unit: "mg/dL", True: 190, SD: 8},
			{Name: "Creatinina", Unit: "mg/dL", True: 1.1, SD: 0.08},
		},
		OutlierRate: 0.05,
		MissingRate: 0.03,
		Original:    true,
		Seed:        42,
	}
}

// RoundGenerator produces consolidated records for a synthetic round.
// The same config always yields the same records.
type RoundGenerator struct {
	config RoundGeneratorConfig
	rng    *rand.Rand
}

// NewRoundGenerator creates a new round generator
func NewRoundGenerator(config RoundGeneratorConfig) *RoundGenerator {
	return &RoundGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns one record per lab and analyte, analytes in config order.
func (g *RoundGenerator) Generate() []proficiency.Record {
	records := make([]proficiency.Record, 0, g.config.Labs*len(g.config.Analytes))
	for _, spec := range g.config.Analytes {
		sample := fmt.Sprintf("M-%s-01", spec.Name)
		for lab := 1; lab <= g.config.Labs; lab++ {
			records = append(records, g.record(spec, fmt.Sprintf("LAB-%03d", lab), sample))
		}
	}
	return records
}

func (g *RoundGenerator) record(spec AnalyteSpec, labID, sample string) proficiency.Record {
	rec := proficiency.Record{
		LabID:    labID,
		Analyte:  spec.Name,
		SampleID: sample,
		Unit:     spec.Unit,
	}

	// Draw every random number up front so missing results do not shift the stream.
	noise := g.rng.NormFloat64()
	outlier := g.rng.Float64() < g.config.OutlierRate
	shift := 5 + 3*g.rng.Float64()
	if g.rng.Intn(2) == 0 {
		shift = -shift
	}
	missing := g.rng.Float64() < g.config.MissingRate

	if missing {
		return rec
	}

	value := spec.True + noise*spec.SD
	if outlier {
		value = spec.True + shift*spec.SD
	}
	value = math.Round(value*100) / 100
	rec.Result = &value

	if g.config.Original && spec.SD > 0 {
		c := trueClass(math.Abs(value-spec.True) / spec.SD)
		rec.OriginalClassification = &c
	}
	return rec
}

// trueClass classifies a deviation against the generating SD.
func trueClass(absZ float64) proficiency.Classification {
	switch {
	case absZ <= 2:
		return proficiency.Acceptable
	case absZ < 3:
		return proficiency.Questionable
	default:
		return proficiency.Unacceptable
	}
}
