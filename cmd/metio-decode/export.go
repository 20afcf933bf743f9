package main

import (
	"io"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/nmcdev/metio"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/micaps"
	"github.com/sirupsen/logrus"
)

// export writes the grids and station tables of res under dir as MICAPS
// text: vector grids as diamond 11, other grids as diamond 4 per variable
// and plane, station tables as diamond 3. Files go to
// dir/<product>/<variable>[/member<m>][/<level>]/YYMMDDHH.FFF and existing
// files are kept. It returns the paths written.
func export(dir string, res *metio.Result) ([]string, error) {
	product := res.Product.String()
	var written []string
	create := func(sub []string, h field.Header, write func(io.Writer) error) error {
		fhour := 0
		if h.ForecastHour != nil {
			fhour = *h.ForecastHour
		}
		path, existed, err := micaps.Create(filepath.Join(append([]string{dir, product}, sub...)...), micaps.FileName(h.Time, fhour), write)
		if err != nil {
			return err
		}
		if existed {
			logrus.Debugf("Keeping existing %s", path)
			return nil
		}
		written = append(written, path)
		return nil
	}

	grids := res.Grids
	if res.Grid != nil {
		grids = []*field.Grid{res.Grid}
	}
	for _, g := range grids {
		for _, p := range planes(g) {
			sub := planeDir(p)
			if u, ok := p.Var("uwind"); ok {
				if v, ok := p.Var("vwind"); ok {
					wind := *p
					wind.Vars = []field.Variable{*u, *v}
					if err := create(append([]string{"wind"}, sub...), p.Header, func(w io.Writer) error {
						return micaps.Encode11(w, &wind)
					}); err != nil {
						return written, err
					}
					continue
				}
			}
			for _, v := range p.Vars {
				one := *p
				one.Vars = []field.Variable{v}
				if err := create(append([]string{v.Name}, sub...), p.Header, func(w io.Writer) error {
					return micaps.Encode4(w, &one, micaps.WithName(v.Name))
				}); err != nil {
					return written, err
				}
			}
		}
	}

	if t := res.Table; t != nil {
		if t.Col("ID") < 0 || t.Col("lon") < 0 || t.Col("lat") < 0 {
			logrus.Debugf("%s table has no station coordinates, not exported", product)
		} else if err := create([]string{"stations"}, t.Header, func(w io.Writer) error {
			return micaps.Encode3(w, t)
		}); err != nil {
			return written, err
		}
	}
	if len(written) > 0 {
		logrus.Infof("Exported %s file(s) under %s", color.GreenString("%d", len(written)), dir)
	}
	return written, nil
}

// planes splits g into one grid per member and level.
func planes(g *field.Grid) []*field.Grid {
	if len(g.Levels) <= 1 && len(g.Members) <= 1 {
		return []*field.Grid{g}
	}
	nl, nm := len(g.Levels), len(g.Members)
	if nl == 0 {
		nl = 1
	}
	if nm == 0 {
		nm = 1
	}
	n := g.Lat.Count * g.Lon.Count
	var out []*field.Grid
	for m := 0; m < nm; m++ {
		for l := 0; l < nl; l++ {
			plane := m*nl + l
			p := *g
			p.Vars = make([]field.Variable, len(g.Vars))
			for i, v := range g.Vars {
				p.Vars[i] = field.Variable{Name: v.Name, Units: v.Units, Data: v.Data[plane*n : (plane+1)*n]}
			}
			if len(g.Levels) > 0 {
				p.Levels = []float64{g.Levels[l]}
				p.Header.Level = field.Float(g.Levels[l])
			}
			if len(g.Members) > 0 {
				p.Members = []int{g.Members[m]}
			}
			out = append(out, &p)
		}
	}
	return out
}

func planeDir(g *field.Grid) []string {
	var sub []string
	if len(g.Members) == 1 {
		sub = append(sub, "member"+strconv.Itoa(g.Members[0]))
	}
	if g.Header.Level != nil {
		sub = append(sub, strconv.FormatFloat(*g.Header.Level, 'f', -1, 64))
	}
	return sub
}
