package geo

import (
	"context"
	"encoding/csv"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/fetcher"
	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// referenceRow is the on-disk layout written by WriteReference.
type referenceRow struct {
	StateFP  string `csv:"STATEFP"`
	CountyFP string `csv:"COUNTYFP"`
	GEOID    string `csv:"GEOID"`
}

// archiveMembers lists the reference formats looked for inside a ZIP, in
// order of preference.
var archiveMembers = []string{".shp", ".csv", ".xlsx"}

// FetchResult is what FetchReference read from the source.
type FetchResult struct {
	Counties []County
	// Shapes is set when requested and the source is a shapefile.
	Shapes []Shape
}

// FetchReference downloads a county reference file and stores it at dest as
// a CSV of STATEFP, COUNTYFP and GEOID. ZIP archives (the TIGER county
// distribution) are unpacked and their shapefile, CSV or workbook is read.
// With withShapes, county names and boundaries are read from a shapefile
// source as well.
func FetchReference(ctx context.Context, f fetcher.Fetcher, rawURL, dest string, withShapes bool) (*FetchResult, error) {
	log := zap.L().With(zap.String("component", "geo.fetch"))

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse reference url")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return nil, eris.Errorf("geo: reference url %q has no file name", rawURL)
	}

	tmp, err := os.MkdirTemp("", "reflex-reference-*")
	if err != nil {
		return nil, eris.Wrap(err, "geo: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	local := filepath.Join(tmp, name)
	n, err := f.DownloadToFile(ctx, rawURL, local)
	if err != nil {
		return nil, flow.NewIOError(rawURL, err)
	}
	log.Info("downloaded reference", zap.String("url", rawURL), zap.Int64("bytes", n))

	src := local
	if strings.EqualFold(filepath.Ext(name), ".zip") {
		files, err := fetcher.ExtractZIP(local, filepath.Join(tmp, "unpacked"))
		if err != nil {
			return nil, flow.NewIOError(rawURL, err)
		}
		src = ""
		for _, ext := range archiveMembers {
			if p, ok := fetcher.FindExt(files, ext); ok {
				src = p
				break
			}
		}
		if src == "" {
			return nil, flow.NewSchemaError(rawURL, eris.Errorf("geo: archive has no %v member", archiveMembers))
		}
	}

	res := &FetchResult{}
	if withShapes && strings.EqualFold(filepath.Ext(src), ".shp") {
		if res.Shapes, err = LoadShapes(src); err != nil {
			return nil, err
		}
		res.Counties = make([]County, len(res.Shapes))
		for i, s := range res.Shapes {
			res.Counties[i] = s.County
		}
	} else if res.Counties, err = LoadReference(ctx, src); err != nil {
		return nil, err
	}

	if err := WriteReference(dest, res.Counties); err != nil {
		return nil, err
	}

	log.Info("stored reference table", zap.String("path", dest), zap.Int("counties", len(res.Counties)))
	return res, nil
}

// WriteReference writes counties as a reference CSV that LoadReference reads
// back unchanged. A .gz suffix compresses the file.
func WriteReference(dest string, counties []County) error {
	af, err := fetcher.Create(dest)
	if err != nil {
		return flow.NewIOError(dest, err)
	}

	rows := make([]referenceRow, len(counties))
	for i, c := range counties {
		rows[i] = referenceRow{
			StateFP:  fips.Format(c.State, 2),
			CountyFP: fips.Format(c.GEOID%1000, 3),
			GEOID:    fips.PadCounty(c.GEOID),
		}
	}

	w := csv.NewWriter(af)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(referenceRow{}); err != nil {
		af.Abort()
		return eris.Wrapf(err, "geo: encode header %s", dest)
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			af.Abort()
			return flow.NewIOError(dest, eris.Wrap(err, "geo: encode county"))
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		af.Abort()
		return flow.NewIOError(dest, eris.Wrap(err, "geo: flush"))
	}
	if err := af.Commit(); err != nil {
		return flow.NewIOError(dest, err)
	}
	return nil
}
