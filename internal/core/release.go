package core

import (
	"fmt"
	"strings"
)

// Release is the output table of a run: the input records generalized to the
// optimum transformation, with records from undersized classes suppressed.
type Release struct {
	Header     []string
	Records    [][]string
	Suppressed int
}

// BuildRelease applies the transformation to the job's dataset.
// Quasi-identifier columns are generalized via their hierarchies, all other
// columns pass through unchanged. Records whose generalized quasi-identifier
// tuple occurs fewer than K times are suppressed.
func BuildRelease(job Job, optimum Transformation) (*Release, error) {
	if job.Dataset == nil {
		return nil, fmt.Errorf("job %q: no dataset", job.Name)
	}
	if len(optimum) != len(job.QuasiIdentifiers) {
		return nil, fmt.Errorf("job %q: transformation has %d levels, want %d", job.Name, len(optimum), len(job.QuasiIdentifiers))
	}

	ds := job.Dataset
	columns := ds.Columns()
	qiLevel := make(map[string]int, len(job.QuasiIdentifiers))
	for i, qi := range job.QuasiIdentifiers {
		qiLevel[qi] = optimum[i]
	}

	records := make([][]string, ds.Rows())
	keys := make([]string, ds.Rows())
	counts := make(map[string]int, ds.Rows())
	for r := 0; r < ds.Rows(); r++ {
		record := make([]string, len(columns))
		var key strings.Builder
		for c, name := range columns {
			value := ds.Value(r, c)
			if level, ok := qiLevel[name]; ok {
				generalized, err := job.Hierarchies[name].Generalize(value, level)
				if err != nil {
					return nil, err
				}
				record[c] = generalized
				key.WriteString(generalized)
				key.WriteByte('|')
			} else {
				record[c] = value
			}
		}
		records[r] = record
		keys[r] = key.String()
		counts[key.String()]++
	}

	out := &Release{Header: append([]string(nil), columns...)}
	for r, record := range records {
		if counts[keys[r]] < job.Privacy.K {
			out.Suppressed++
			continue
		}
		out.Records = append(out.Records, record)
	}
	return out, nil
}
