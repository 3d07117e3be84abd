// Package modeltest builds entry trees shared by tests across packages.
package modeltest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/model"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func meta(id, description string) model.Meta {
	return model.Meta{ID: uuid.MustParse(id), Description: description, CreationTime: epoch}
}

// SampleDatabase mirrors a small motor record: a Parameter, a Setpoint,
// a Collection of three motor fields, and the Snapshot taken of it.
//
//	Entries[0] Parameter  MY:MOTOR:mtr1.ACCL
//	Entries[1] Setpoint   MY:MOTOR:mtr1.ACCL = 2
//	Entries[2] Collection ACCL, VELO, PREC
//	Entries[3] Snapshot   2, 2, 6
func SampleDatabase() *model.Root {
	root := model.NewRoot()

	p1 := model.NewParameter("MY:MOTOR:mtr1.ACCL", "parameter 1 in root")
	root.Entries = append(root.Entries, p1, model.SetpointFromParameter(p1, model.Int(2)))

	coll := model.NewCollection("collection 1", "collection 1 defining some motor fields")
	snap := model.NewSnapshot("snapshot 1", "Snapshot 1 created from collection 1")
	fields := []string{"ACCL", "VELO", "PREC"}
	data := []int64{2, 2, 6}
	for i, fld := range fields {
		p := model.NewParameter("MY:PREFIX:mtr1."+fld, "motor field "+fld)
		coll.Children = append(coll.Children, p)
		snap.Children = append(snap.Children, model.SetpointFromParameter(p, model.Int(data[i])))
	}
	root.Entries = append(root.Entries, coll, snap)
	return root
}

// ParameterWithReadback is a setpoint Parameter linked to a read-only one.
func ParameterWithReadback() *model.Parameter {
	rb := &model.Parameter{
		Meta:     meta("64772c61-c117-445b-b0c8-4c17fd1625d9", "A readback PV"),
		Address:  "RBV",
		ReadOnly: true,
	}
	return &model.Parameter{
		Meta:     meta("b508344d-1fe9-473b-8d43-9499d0e8e23f", "A setpoint PV"),
		Address:  "SET",
		Readback: rb,
	}
}

// Linac is a three-level facility tree with a matching Snapshot whose
// LI21 vacuum setpoint carries an embedded readback. The BSY collection is
// shared between LCLS-NC and LCLS-SC, as is its snapshot.
func Linac() (*model.Collection, *model.Snapshot) {
	param := func(id, addr, desc string) *model.Parameter {
		return &model.Parameter{Meta: meta(id, desc), Address: addr}
	}
	coll := func(id, title, desc string, children ...model.Entry) *model.Collection {
		return &model.Collection{Meta: meta(id, desc), Title: title, Children: children}
	}
	snap := func(id string, c *model.Collection, children ...model.Entry) *model.Snapshot {
		return &model.Snapshot{Meta: meta(id, c.Description), Title: c.Title, Children: children}
	}
	sp := func(id string, p *model.Parameter, v model.Value) *model.Setpoint {
		return &model.Setpoint{Meta: meta(id, p.Description), Address: p.Address, Data: v}
	}

	vacBsy := param("030786df-153b-4d29-bc1f-66deeb116724", "VAC:BSY:TEST0", "Only VAC pv in BSY")
	vacBsyCol := coll("22c2d597-2139-4c02-ac86-27f474728fad", "VAC", "Vacuum devices in the BSY", vacBsy)
	bsyCol := coll("2506d87a-5980-4470-b29a-63eea183f53d", "BSY", "Sector in which beam is directed towards an endpoint", vacBsyCol)

	lasrIn20 := param("a13ef8a5-b8df-4caa-80f5-395b16eaa5f1", "LASR:IN20:TEST0", "Only laser pv in IN20")
	lasrIn20Col := coll("2290a098-0475-403d-a902-a26481068f25", "LASR", "Laser devices in IN20", lasrIn20)
	in20Col := coll("4cd08663-ee26-41ed-87d2-5ff0777e0e35", "IN20", "Injector sector for LCLS-NC", lasrIn20Col)

	vacLi21 := param("8dba63d5-98e8-4647-ae44-ff0a38a4805d", "VAC:LI21:TEST0", "Only VAC pv in LI21")
	vacLi21Col := coll("be3d4655-7813-4974-bb10-19e4787f8a8e", "VAC", "VAC devices within LI21", vacLi21)
	li21Col := coll("8b434f17-fc67-430c-aa33-d1afb64dbad2", "LI21", "First transport sector for LCLS-NC", vacLi21Col)

	lclsNC := coll("973ce16b-61ff-469b-a5f2-cd64783dcec5", "LCLS-NC", "The normal-conducting LINAC", in20Col, li21Col, bsyCol)

	vacL0b := param("5ec33c74-7f4c-4905-a106-44fbfe138140", "VAC:L0B:TEST0", "Only VAC pv in L0B")
	vacL0bCol := coll("aa11f29a-3e7e-4647-bfc9-133257647fb7", "VAC", "First transport sector for LCLS-SC", vacL0b)
	l0bCol := coll("5e84544b-4cfa-471c-b827-80063801d27b", "L0B", "First transport sector for LCLS-SC", vacL0bCol)

	lclsSC := coll("4732fed6-c321-4a5c-b45b-c2bf704b7fe3", "LCLS-SC", "The superconducting LINAC", l0bCol, bsyCol)

	all := coll("441ff79f-4948-480e-9646-55a1462a5a70", "Accelerator Directorate",
		"All facilities in the SLAC LINAC", lclsNC, lclsSC)

	vacBsyVal := sp("6bebcb59-884f-4e68-927d-f3053effd698", vacBsy, model.String(""))
	bsySnap := snap("a62f1386-39de-4d19-9ea4-82f0212169a7", bsyCol,
		snap("aca9400b-d37c-4b86-ada7-4801cdc6aa72", vacBsyCol, vacBsyVal))

	in20Snap := snap("f9965c8f-55eb-4e5c-8d52-cc939eed76db", in20Col,
		snap("278875de-7adf-4c52-bc88-5b188eb26d4f", lasrIn20Col,
			sp("4d2f7bf2-af71-492b-8528-ba9b6e3ab964", lasrIn20, model.Int(0))))

	li21Rb := &model.Readback{
		Meta:    meta("de66d08e-09c3-4c45-8978-900e51d00248", vacLi21.Description),
		Address: vacLi21.Address,
		Data:    model.Float(0.0),
	}
	li21Sp := sp("4bffe9a5-f198-41d8-90ab-870d1b5a325b", vacLi21, model.Float(5.0))
	li21Sp.Readback = &model.Readback{
		Meta:    meta("0c9f2b5e-3a63-4a0d-9f0e-5a8f5d8f1b11", vacLi21.Description),
		Address: vacLi21.Address,
		Data:    model.Float(0.0),
	}
	li21Snap := snap("63a4fab8-17f9-4066-92c7-311e2eb6a44f", li21Col,
		snap("97833e7b-e49d-4898-a602-bb39c493b0ee", vacLi21Col, li21Sp, li21Rb))

	ncSnap := snap("7f86856a-8963-4cf2-9830-f3cce6c1b4b2", lclsNC, in20Snap, li21Snap, bsySnap)

	l0bSnap := snap("cb2a6de0-84b4-4f9c-b7b7-ec67ccfd622f", l0bCol,
		snap("ed223bb4-ce6f-4b58-b53e-c2c538b1a2c7", vacL0bCol,
			sp("2ef43192-40c9-4e79-96e7-2d7f6df58cd9", vacL0b, model.Int(-10))))
	scSnap := snap("f01dd01b-bf48-49b2-bbb0-68dcc0b737f8", lclsSC, l0bSnap, bsySnap)

	allSnap := snap("06282731-33ea-4270-ba14-098872e627dc", all, ncSnap, scSnap)
	return all, allSnap
}

// FlatCollection builds a Collection of n Parameters addressed
// prefix:0 .. prefix:n-1.
func FlatCollection(prefix string, n int) *model.Collection {
	c := model.NewCollection(prefix, "flat collection "+prefix)
	for i := 0; i < n; i++ {
		c.Children = append(c.Children, model.NewParameter(fmt.Sprintf("%s:%d", prefix, i), ""))
	}
	return c
}
