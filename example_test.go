package modeller_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	modeller "github.com/Spyderisk/system-modeller-sub004"
	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// ExampleEngine_Assess demonstrates assessing a small system.
func ExampleEngine_Assess() {
	engine := modeller.NewEngine(
		modeller.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if _, err := engine.LoadDomain("domain/testdata/network.yaml"); err != nil {
		fmt.Println(err)
		return
	}

	assessment, err := engine.Assess(context.Background(), "network", "", validator.Input{
		Assets: []assetgraph.Asset{
			{ID: "s1", Type: "Server", Label: "Web"},
			{ID: "p1", Type: "Process", Label: "Nginx"},
		},
		Relations: []assetgraph.Relation{
			{From: "s1", Type: "hosts", To: "p1"},
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, t := range assessment.Model.Threats() {
		fmt.Println(t.Parent, t.Label, t.IsResolved())
	}
	fmt.Println(assessment.RiskVector)
}
