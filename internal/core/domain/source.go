package domain

import "fmt"

// SourceSite is one source particle: position, direction, energy, weight.
type SourceSite struct {
	R  [3]float64
	U  [3]float64
	E  float64
	Wt float64
}

// SourceSiteFloats is the flat float64 width of one encoded site.
const SourceSiteFloats = 8

// EncodeSourceSites flattens sites into a float64 array for dataset storage.
func EncodeSourceSites(sites []SourceSite) []float64 {
	out := make([]float64, 0, len(sites)*SourceSiteFloats)
	for _, s := range sites {
		out = append(out,
			s.R[0], s.R[1], s.R[2],
			s.U[0], s.U[1], s.U[2],
			s.E, s.Wt)
	}
	return out
}

// DecodeSourceSites reads sites back from their flat encoding.
func DecodeSourceSites(data []float64) ([]SourceSite, error) {
	if len(data)%SourceSiteFloats != 0 {
		return nil, fmt.Errorf("domain: source data length %d not a multiple of %d", len(data), SourceSiteFloats)
	}
	sites := make([]SourceSite, len(data)/SourceSiteFloats)
	for i := range sites {
		d := data[i*SourceSiteFloats:]
		sites[i] = SourceSite{
			R:  [3]float64{d[0], d[1], d[2]},
			U:  [3]float64{d[3], d[4], d[5]},
			E:  d[6],
			Wt: d[7],
		}
	}
	return sites, nil
}
