package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Provider supplies the frame a run trains on.
type Provider interface {
	Load(ctx context.Context) (*Frame, error)
}

// CSVProvider reads a headered CSV file. A column is numeric when every cell
// parses as a float, otherwise categorical, so a column with an empty cell is
// categorical. No values are imputed.
type CSVProvider struct {
	Path   string
	Target string
}

// Load implements Provider.
func (p CSVProvider) Load(ctx context.Context) (*Frame, error) {
	file, err := os.Open(p.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: open %s", p.Path)
	}
	defer file.Close()
	return ReadCSV(ctx, file, p.Target)
}

// ReadCSV parses CSV content with a header row into a Frame.
func ReadCSV(ctx context.Context, r io.Reader, target string) (*Frame, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewEmptyInputError("ReadCSV")
	}
	if err != nil {
		return nil, errors.Wrap(err, "dataset: read header")
	}

	cells := make([][]string, len(header))
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset: read line %d", line)
		}
		for j, s := range rec {
			cells[j] = append(cells[j], strings.TrimSpace(s))
		}
	}
	if len(cells[0]) == 0 {
		return nil, errors.NewEmptyInputError("ReadCSV")
	}

	columns := make([]Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		values, numeric := parseFloats(cells[j])
		if numeric {
			columns[j] = NumericColumn(name, values)
			continue
		}
		if name == target {
			return nil, errors.NewConfigurationError("dataset", "target", "target column must be numeric", target)
		}
		columns[j] = CategoricalColumn(name, cells[j])
	}
	return NewFrame(target, columns...)
}

// parseFloats reports whether every cell is a float. An empty cell is not.
func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Housing column names produced by SyntheticHousing.
const (
	HousingTarget         = "MedHouseVal"
	HousingOceanProximity = "OceanProximity"
)

// HousingFeatures lists the numeric features of SyntheticHousing in column order.
var HousingFeatures = []string{
	"MedInc", "HouseAge", "AveRooms", "AveBedrms",
	"Population", "AveOccup", "Latitude", "Longitude",
}

// SyntheticHousing generates a California-housing-shaped regression frame.
// The same Rows and Seed always produce the same frame.
type SyntheticHousing struct {
	Rows int
	Seed int64
	// WithCategorical adds the OceanProximity column.
	WithCategorical bool
}

// Load implements Provider.
func (s SyntheticHousing) Load(ctx context.Context) (*Frame, error) {
	if s.Rows <= 0 {
		return nil, errors.NewConfigurationError("dataset", "synthetic_rows", "must be positive", s.Rows)
	}
	rng := rand.New(rand.NewSource(s.Seed))
	n := s.Rows

	cols := make([][]float64, len(HousingFeatures))
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	target := make([]float64, n)
	ocean := make([]string, n)

	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		medInc := clamp(math.Exp(1.2+0.45*rng.NormFloat64()), 0.5, 15)
		houseAge := float64(1 + rng.Intn(52))
		aveRooms := clamp(5.2+0.6*medInc/3+rng.NormFloat64(), 1.5, 12)
		aveBedrms := clamp(1.05+0.05*rng.NormFloat64()+0.02*(aveRooms-5), 0.5, 3)
		population := clamp(math.Exp(7+0.7*rng.NormFloat64()), 3, 35000)
		aveOccup := clamp(2.9+0.7*rng.NormFloat64(), 0.7, 10)
		lat := 32.5 + 9.5*rng.Float64()
		lon := clamp(-124.3+0.95*(42-lat)+0.8*rng.NormFloat64(), -124.35, -114.3)

		// distance from a coastline running roughly parallel to the state.
		coast := lon - (-124.3 + 0.95*(42-lat))
		value := 0.42*medInc +
			0.008*houseAge -
			0.12*(aveRooms-5.2) +
			0.6*(aveBedrms-1.05) -
			0.15*math.Log(aveOccup) +
			1.1*math.Exp(-math.Max(coast, 0)/1.5) +
			0.03*medInc*math.Exp(-math.Max(coast, 0)) +
			0.25*rng.NormFloat64()

		vals := []float64{medInc, houseAge, aveRooms, aveBedrms, population, aveOccup, lat, lon}
		for j, v := range vals {
			cols[j][i] = v
		}
		target[i] = clamp(value, 0.15, 5.0)
		ocean[i] = oceanProximity(coast, lat, rng)
	}

	columns := make([]Column, 0, len(HousingFeatures)+2)
	for j, name := range HousingFeatures {
		columns = append(columns, NumericColumn(name, cols[j]))
	}
	if s.WithCategorical {
		columns = append(columns, CategoricalColumn(HousingOceanProximity, ocean))
	}
	columns = append(columns, NumericColumn(HousingTarget, target))
	return NewFrame(HousingTarget, columns...)
}

func oceanProximity(coast, lat float64, rng *rand.Rand) string {
	switch {
	case coast < 0.3 && rng.Float64() < 0.002:
		return "ISLAND"
	case coast < 0.3 && lat > 37 && lat < 38.5:
		return "NEAR BAY"
	case coast < 0.3:
		return "NEAR OCEAN"
	case coast < 1.2:
		return "<1H OCEAN"
	default:
		return "INLAND"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
