package main

import (
	"github.com/math-fehr/WindOS-sub000/go/cmd"

	_ "github.com/math-fehr/WindOS-sub000/go/cmd/boot"
	_ "github.com/math-fehr/WindOS-sub000/go/cmd/ls"
	_ "github.com/math-fehr/WindOS-sub000/go/cmd/mkfs"
)

func main() { cmd.Main() }
