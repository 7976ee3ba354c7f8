package cmd

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// registers that changed since the previous full dump are marked with +
var regDiff models.RegDiff

var strEqNumRe = regexp.MustCompile(`^([a-z0-9]+)=((-|0x|0b)?[0-9a-fA-F]+)$`)

var RegCmd = cmd(&Command{
	Name: "reg",
	Desc: "Read/write the live core registers: reg [name[=value]...].",
	Run: func(c *Context, args ...string) error {
		core := c.K.Core()
		if len(args) == 0 {
			frame := core.Frame()
			c.Printf("%s", models.FormatChanges(regDiff.Diff(&frame), false))
			c.Printf("root 0x%08x irq masked=%v idle=%v\n", core.Root(), core.IRQMasked(), core.Idle())
			return nil
		}
		for _, v := range args {
			var value uint64
			reg := v
			match := strEqNumRe.FindStringSubmatch(v)
			if len(match) > 0 {
				reg = match[1]
				var err error
				if match[2][0] == '-' {
					var n int64
					n, err = strconv.ParseInt(match[2], 0, 32)
					value = uint64(uint32(n))
				} else {
					value, err = strconv.ParseUint(match[2], 0, 32)
				}
				if err != nil {
					c.Printf("error parsing %s value: %v\n", reg, err)
					continue
				}
			}
			valid := false
			for enum, name := range cpu.RegNames {
				if reg != name {
					continue
				}
				valid = true
				if len(match) > 0 {
					if err := core.RegWrite(enum, value); err != nil {
						c.Printf("%s: %v\n", v, err)
					}
				} else {
					val, _ := core.RegRead(enum)
					c.Printf("%s 0x%x\n", name, val)
				}
				break
			}
			if !valid {
				if strings.Contains(reg, "=") {
					c.Printf("invalid assignment: %s\n", reg)
				} else {
					c.Printf("reg %s not found\n", reg)
				}
			}
		}
		return nil
	},
})
