package storage

import (
	"encoding/json"
	"fmt"

	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

// CurrentCodecVersion tags persisted payloads so future schema changes can
// migrate old rows.
const CurrentCodecVersion = 1

// geneRecord is the wire form of a gene; Type discriminates the closed
// set of gene kinds.
type geneRecord struct {
	Type    string   `json:"type"`
	Key     string   `json:"key"`
	Bool    bool     `json:"bool,omitempty"`
	Int     int64    `json:"int,omitempty"`
	IntMin  int64    `json:"int_min,omitempty"`
	IntMax  int64    `json:"int_max,omitempty"`
	Float   float64  `json:"float,omitempty"`
	FltMin  float64  `json:"float_min,omitempty"`
	FltMax  float64  `json:"float_max,omitempty"`
	Str     string   `json:"string,omitempty"`
	Options []string `json:"options,omitempty"`
}

type chromosomeRecord struct {
	Genes   []geneRecord `json:"genes"`
	Fitness float64      `json:"fitness"`
}

type populationRecord struct {
	CodecVersion int                `json:"codec_version"`
	Generation   int                `json:"generation"`
	Chromosomes  []chromosomeRecord `json:"chromosomes"`
}

// EncodePopulation serializes a population snapshot.
func EncodePopulation(generation int, chromosomes []*genetic.Chromosome) ([]byte, error) {
	record := populationRecord{
		CodecVersion: CurrentCodecVersion,
		Generation:   generation,
		Chromosomes:  make([]chromosomeRecord, len(chromosomes)),
	}

	for i, c := range chromosomes {
		cr := chromosomeRecord{
			Genes:   make([]geneRecord, len(c.Genes)),
			Fitness: c.Fitness,
		}
		for j, g := range c.Genes {
			gr, err := encodeGene(g)
			if err != nil {
				return nil, err
			}
			cr.Genes[j] = gr
		}
		record.Chromosomes[i] = cr
	}

	return json.Marshal(record)
}

// DecodePopulation deserializes a population snapshot.
func DecodePopulation(payload []byte) (int, []*genetic.Chromosome, error) {
	var record populationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return 0, nil, fmt.Errorf("decode population: %w", err)
	}
	if record.CodecVersion > CurrentCodecVersion {
		return 0, nil, fmt.Errorf("unsupported codec version %d", record.CodecVersion)
	}

	chromosomes := make([]*genetic.Chromosome, len(record.Chromosomes))
	for i, cr := range record.Chromosomes {
		genes := make([]genetic.Gene, len(cr.Genes))
		for j, gr := range cr.Genes {
			g, err := decodeGene(gr)
			if err != nil {
				return 0, nil, err
			}
			genes[j] = g
		}
		chromosomes[i] = &genetic.Chromosome{Genes: genes, Fitness: cr.Fitness}
	}

	return record.Generation, chromosomes, nil
}

func encodeGene(g genetic.Gene) (geneRecord, error) {
	switch gene := g.(type) {
	case *genetic.BoolGene:
		return geneRecord{Type: "bool", Key: gene.Key, Bool: gene.Value}, nil
	case *genetic.IntGene:
		return geneRecord{Type: "int", Key: gene.Key, Int: gene.Value, IntMin: gene.Min, IntMax: gene.Max}, nil
	case *genetic.FloatGene:
		return geneRecord{Type: "float", Key: gene.Key, Float: gene.Value, FltMin: gene.Min, FltMax: gene.Max}, nil
	case *genetic.CategoricalGene:
		return geneRecord{Type: "categorical", Key: gene.Key, Str: gene.Value, Options: gene.Options}, nil
	default:
		return geneRecord{}, fmt.Errorf("unsupported gene type %T", g)
	}
}

func decodeGene(r geneRecord) (genetic.Gene, error) {
	switch r.Type {
	case "bool":
		return &genetic.BoolGene{Key: r.Key, Value: r.Bool}, nil
	case "int":
		return &genetic.IntGene{Key: r.Key, Value: r.Int, Min: r.IntMin, Max: r.IntMax}, nil
	case "float":
		return &genetic.FloatGene{Key: r.Key, Value: r.Float, Min: r.FltMin, Max: r.FltMax}, nil
	case "categorical":
		return &genetic.CategoricalGene{Key: r.Key, Value: r.Str, Options: r.Options}, nil
	default:
		return nil, fmt.Errorf("unknown gene type %q", r.Type)
	}
}
