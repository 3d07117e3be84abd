// Package importer builds a Collection from a CSV listing of
// setpoint/readback address pairs.
//
// The first row is a header. Columns, in order:
//
//	region, setpoint, readback, alias, area, subsystem, program_id
//
// "NA" marks a missing setpoint or readback. A row with both yields a
// writable Parameter linked to a read-only one; a row with only a readback
// yields the read-only Parameter alone.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tamzrod/superscore/internal/model"
)

// Tag groups attached to every imported Parameter.
const (
	TagProgram   = "program"
	TagRegion    = "region"
	TagArea      = "area"
	TagSubsystem = "subsystem"
)

const missing = "NA"

var programs = map[int]string{
	1: "LCLS",
	2: "FACET",
	3: "LCLS2",
}

// ErrFormat wraps every parse failure.
var ErrFormat = errors.New("importer: malformed csv")

// Options controls the produced Collection.
type Options struct {
	Title       string
	Description string
}

// Read parses r into a new Collection. Rows keep their file order.
func Read(r io.Reader, opts Options) (*model.Collection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 7
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrFormat)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}

	coll := model.NewCollection(opts.Title, opts.Description)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		line, _ := cr.FieldPos(0)
		p, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		coll.Children = append(coll.Children, p)
	}
	return coll, nil
}

func parseRow(rec []string) (*model.Parameter, error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	region, setpoint, readback, alias, area, subsystem, programID :=
		rec[0], rec[1], rec[2], rec[3], rec[4], rec[5], rec[6]

	id, err := strconv.Atoi(programID)
	if err != nil {
		return nil, fmt.Errorf("program id %q: %v", programID, err)
	}
	program, ok := programs[id]
	if !ok {
		return nil, fmt.Errorf("unknown program id %d", id)
	}

	tags := func() model.Tags {
		return model.Tags{
			TagProgram:   {program},
			TagRegion:    {region},
			TagArea:      {area},
			TagSubsystem: {subsystem},
		}
	}

	var rb *model.Parameter
	if readback != missing && readback != "" {
		rb = model.NewParameter(readback, alias)
		rb.ReadOnly = true
		rb.Tags = tags()
	}
	if setpoint == missing || setpoint == "" {
		if rb == nil {
			return nil, errors.New("row has neither setpoint nor readback")
		}
		return rb, nil
	}

	sp := model.NewParameter(setpoint, alias)
	sp.Readback = rb
	sp.Tags = tags()
	return sp, nil
}
