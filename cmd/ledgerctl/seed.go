package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/bookkeeping/internal/app"
	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

// seedFile describes one period to create, in YAML:
//
//	actor: 1
//	spectators: [5]
//	accounts:
//	  - ledger_id: 100
//	    type: result
//	    records:
//	      - {value: 40, type: credit}
type seedFile struct {
	Actor      int64         `yaml:"actor"`
	Spectators []int64       `yaml:"spectators"`
	Accounts   []seedAccount `yaml:"accounts"`
}

type seedAccount struct {
	LedgerID   int64        `yaml:"ledger_id"`
	Type       string       `yaml:"type"`
	FromValue  float64      `yaml:"from_value"`
	Spectators []int64      `yaml:"spectators"`
	Records    []seedRecord `yaml:"records"`
}

type seedRecord struct {
	Value float64 `yaml:"value"`
	Type  string  `yaml:"type"`
}

type seedResult struct {
	PeriodID int64
	Accounts int
	Records  int
}

func decodeSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return seedFile{}, fmt.Errorf("seed: decode: %w", err)
	}
	if f.Actor <= 0 {
		return seedFile{}, fmt.Errorf("seed: actor must be positive")
	}
	return f, nil
}

func applySeed(ctx context.Context, svc *ledger.Service, f seedFile) (seedResult, error) {
	p, err := svc.CreatePeriod(ctx, f.Actor, ledger.CreatePeriodInput{Spectators: f.Spectators})
	if err != nil {
		return seedResult{}, fmt.Errorf("seed: period: %w", err)
	}
	res := seedResult{PeriodID: p.ID}
	for i, sa := range f.Accounts {
		a, err := svc.CreateAccount(ctx, f.Actor, p.ID, ledger.CreateAccountInput{
			LedgerID:   sa.LedgerID,
			Type:       ledger.AccountType(sa.Type),
			FromValue:  sa.FromValue,
			Spectators: sa.Spectators,
		})
		if err != nil {
			return res, fmt.Errorf("seed: account %d: %w", i, err)
		}
		res.Accounts++
		for j, sr := range sa.Records {
			if _, err := svc.CreateRecord(ctx, f.Actor, a.ID, ledger.RecordInput{
				Value:     sr.Value,
				ValueType: ledger.ValueType(sr.Type),
			}); err != nil {
				return res, fmt.Errorf("seed: account %d record %d: %w", i, j, err)
			}
			res.Records++
		}
	}
	return res, nil
}

func newSeedCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a period with accounts and records from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fh, err := os.Open(path)
			if err != nil {
				return err
			}
			defer fh.Close()
			f, err := decodeSeed(fh)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			l, err := app.OpenLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			res, err := applySeed(cmd.Context(), l.Service, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded period %d: %d accounts, %d records\n", res.PeriodID, res.Accounts, res.Records)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "seed file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
