package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"lavendeux/internal/bytecode"
	"lavendeux/internal/value"
)

// TestMain registers lavrunMain as an in-process "lavrun" subcommand so
// testscript drives the CLI without spawning a separately built binary,
// mirroring the teacher's own textual CLI rather than introducing a new
// integration harness shape.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"lavrun": lavrunMain,
	}))
}

func TestLavrunCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"mkimage-add":      cmdMkImageAdd,
			"mkimage-greeter":  cmdMkImageGreeter,
			"mkimage-badmagic": cmdMkImageBadMagic,
		},
	})
}

// cmdMkImageAdd writes an image whose entry function returns 2+3, to the
// path named by args[0].
func cmdMkImageAdd(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: mkimage-add <path>")
	}
	img := bytecode.NewImage(false)
	img.Entry = 1
	c := bytecode.NewChunk()
	two := c.AddConstant(value.NewInt(2, value.W64))
	three := c.AddConstant(value.NewInt(3, value.W64))
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(two))
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(three))
	c.WriteOp(bytecode.OpAdd)
	c.WriteOp(bytecode.OpRet)
	img.Functions = append(img.Functions, &bytecode.FuncEntry{ID: 1, Name: "main", Code: c})
	writeImage(ts, args[0], img)
}

// cmdMkImageGreeter writes an image with a callable "greet" function
// taking one string parameter and returning it via the PRNT syscall.
func cmdMkImageGreeter(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: mkimage-greeter <path>")
	}
	img := bytecode.NewImage(false)
	img.Entry = 1

	mainCode := bytecode.NewChunk()
	mainCode.WriteOp(bytecode.OpRet)

	greetCode := bytecode.NewChunk()
	name := greetCode.AddConstant(value.Str("who"))
	sys := greetCode.AddConstant(value.Str("PRNT"))
	greetCode.WriteOp(bytecode.OpRef)
	greetCode.WriteUint16(uint16(name))
	greetCode.WriteOp(bytecode.OpDeref)
	greetCode.WriteOp(bytecode.OpSyscall)
	greetCode.WriteUint16(uint16(sys))
	greetCode.WriteOp(bytecode.OpRet)

	img.Functions = append(img.Functions,
		&bytecode.FuncEntry{ID: 1, Name: "main", Code: mainCode},
		&bytecode.FuncEntry{
			ID: 2, Name: "greet",
			Params: []bytecode.ParamSpec{{Name: "who", Type: "string"}},
			Code:   greetCode,
		},
	)
	writeImage(ts, args[0], img)
}

func cmdMkImageBadMagic(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: mkimage-badmagic <path>")
	}
	img := bytecode.NewImage(false)
	img.Magic = 0xBAD
	img.Entry = 1
	img.Functions = append(img.Functions, &bytecode.FuncEntry{ID: 1, Name: "main", Code: bytecode.NewChunk()})
	writeImage(ts, args[0], img)
}

func writeImage(ts *testscript.TestScript, rel string, img *bytecode.Image) {
	b, err := img.Bytes()
	if err != nil {
		ts.Fatalf("encode image: %v", err)
	}
	if err := os.WriteFile(ts.MkAbs(rel), b, 0o644); err != nil {
		ts.Fatalf("write image: %v", err)
	}
}
