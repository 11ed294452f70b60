// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FerretDB/datastore/internal/config"
	"github.com/FerretDB/datastore/nosqlstore"
	"github.com/FerretDB/datastore/objectstore"
	"github.com/FerretDB/datastore/sqlstore"
)

// openStore creates a document store from the configuration file section.
func (rc *runContext) openStore() (*nosqlstore.Store, error) {
	cfg, err := config.Load(rc.cli.Config, rc.cli.Section)
	if err != nil {
		return nil, err
	}

	return nosqlstore.New(cfg, nosqlstore.WithLogger(rc.l), nosqlstore.WithMetrics(rc.metrics))
}

// withStore runs f with a connected document store.
func (rc *runContext) withStore(f func(*nosqlstore.Store) error) error {
	s, err := rc.openStore()
	if err != nil {
		return err
	}

	return s.WithConnection(rc.ctx, f)
}

// print writes v as a single line of JSON.
func (rc *runContext) print(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(rc.out, string(b))

	return err
}

// parseDocument parses a JSON object; an empty string is an empty document.
func parseDocument(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON object %q: %w", s, err)
	}

	return doc, nil
}

type frameworksCmd struct{}

func (cmd *frameworksCmd) Run(rc *runContext) error {
	return rc.print(map[string][]string{
		"nosql_store":  nosqlstore.Frameworks(),
		"object_store": objectstore.Frameworks(),
		"sql_store":    sqlstore.Frameworks(),
	})
}

type pingCmd struct{}

func (cmd *pingCmd) Run(rc *runContext) error {
	return rc.withStore(func(s *nosqlstore.Store) error {
		return rc.print(map[string]string{
			"framework": string(s.Framework()),
			"state":     s.State().String(),
		})
	})
}

type insertCmd struct {
	Collection string `arg:"" help:"Collection name."`
	Document   string `arg:"" help:"JSON document or array of documents."`
}

func (cmd *insertCmd) Run(rc *runContext) error {
	if strings.HasPrefix(strings.TrimSpace(cmd.Document), "[") {
		var docs []nosqlstore.Document
		if err := json.Unmarshal([]byte(cmd.Document), &docs); err != nil {
			return fmt.Errorf("invalid JSON array: %w", err)
		}

		return rc.withStore(func(s *nosqlstore.Store) error {
			ids, err := s.BulkInsert(rc.ctx, cmd.Collection, docs)
			if err != nil {
				return err
			}

			return rc.print(map[string]any{"ids": ids})
		})
	}

	doc, err := parseDocument(cmd.Document)
	if err != nil {
		return err
	}

	return rc.withStore(func(s *nosqlstore.Store) error {
		id, err := s.Insert(rc.ctx, cmd.Collection, doc)
		if err != nil {
			return err
		}

		return rc.print(map[string]any{"id": id})
	})
}

type findCmd struct {
	Collection string   `arg:"" help:"Collection name."`
	Filter     string   `default:""      help:"JSON filter; all documents by default."`
	Projection []string `help:"Fields to return."`
	ExcludeID  bool     `default:"false" help:"Do not return _id." name:"exclude-id"`
	Skip       int64    `default:"0"     help:"Number of documents to skip."`
	Limit      int64    `default:"0"     help:"Maximum number of documents; 0 means no limit."`
}

func (cmd *findCmd) Run(rc *runContext) error {
	filter, err := parseDocument(cmd.Filter)
	if err != nil {
		return err
	}

	return rc.withStore(func(s *nosqlstore.Store) error {
		docs, err := s.Find(rc.ctx, cmd.Collection, filter, &nosqlstore.FindOptions{
			Projection: cmd.Projection,
			ExcludeID:  cmd.ExcludeID,
			Skip:       cmd.Skip,
			Limit:      cmd.Limit,
		})
		if err != nil {
			return err
		}

		for _, doc := range docs {
			if err = rc.print(doc); err != nil {
				return err
			}
		}

		return nil
	})
}

type loadCmd struct{}

func (cmd *loadCmd) Run(rc *runContext) error {
	return rc.withStore(func(s *nosqlstore.Store) error {
		docs, err := s.LoadData(rc.ctx, nil)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			if err = rc.print(doc); err != nil {
				return err
			}
		}

		return nil
	})
}

type updateCmd struct {
	Collection string `arg:"" help:"Collection name."`
	Filter     string `arg:"" help:"JSON filter."`
	Update     string `arg:"" help:"JSON update; fields are set if there are no operators."`
	Upsert     bool   `default:"false" help:"Insert a document if nothing matches."`
}

func (cmd *updateCmd) Run(rc *runContext) error {
	filter, err := parseDocument(cmd.Filter)
	if err != nil {
		return err
	}

	update, err := parseDocument(cmd.Update)
	if err != nil {
		return err
	}

	return rc.withStore(func(s *nosqlstore.Store) error {
		n, err := s.Update(rc.ctx, cmd.Collection, filter, update, cmd.Upsert)
		if err != nil {
			return err
		}

		return rc.print(map[string]any{"modified": n})
	})
}

type deleteCmd struct {
	Collection string `arg:"" help:"Collection name."`
	Filter     string `arg:"" help:"JSON filter; '{}' deletes all documents."`
}

func (cmd *deleteCmd) Run(rc *runContext) error {
	filter, err := parseDocument(cmd.Filter)
	if err != nil {
		return err
	}

	return rc.withStore(func(s *nosqlstore.Store) error {
		n, err := s.Delete(rc.ctx, cmd.Collection, filter)
		if err != nil {
			return err
		}

		return rc.print(map[string]any{"deleted": n})
	})
}

type objectsListCmd struct {
	Section string `default:"object_store" help:"Configuration section." name:"objects-section"`
	Bucket  string `default:""             help:"Bucket; the root bucket by default."`
	Prefix  string `default:""             help:"Key prefix."`
}

func (cmd *objectsListCmd) Run(rc *runContext) error {
	m, err := config.LoadSection(rc.cli.Config, cmd.Section)
	if err != nil {
		return err
	}

	s, err := objectstore.NewFromMap(m, rc.l)
	if err != nil {
		return err
	}

	objects, err := s.ListObjects(rc.ctx, cmd.Bucket, cmd.Prefix)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if err = rc.print(obj); err != nil {
			return err
		}
	}

	return nil
}

type sqlLoadCmd struct {
	Section string `default:"sql_store" help:"Configuration section." name:"sql-section"`
}

func (cmd *sqlLoadCmd) Run(rc *runContext) (err error) {
	m, err := config.LoadSection(rc.cli.Config, cmd.Section)
	if err != nil {
		return err
	}

	s, err := sqlstore.NewFromMap(m, rc.l)
	if err != nil {
		return err
	}

	defer func() {
		if e := s.Close(); e != nil && err == nil {
			err = e
		}
	}()

	rows, err := s.LoadData(rc.ctx, nil)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err = rc.print(row); err != nil {
			return err
		}
	}

	return nil
}
