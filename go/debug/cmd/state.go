package cmd

import (
	"os"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models"
)

var SaveCmd = cmd(&Command{
	Name: "save",
	Desc: "Write a machine snapshot: save <file>.",
	Run: func(c *Context, path string) error {
		snap, err := models.Save(c.K)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, snap, 0644); err != nil {
			return errors.Wrap(err, "save")
		}
		c.Printf("wrote %d bytes to %s\n", len(snap), path)
		return nil
	},
})

var LoadCmd = cmd(&Command{
	Name: "load",
	Desc: "Restore RAM and registers from a snapshot: load <file>.",
	Run: func(c *Context, path string) error {
		snap, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "load")
		}
		return models.Load(c.K, snap)
	},
})
