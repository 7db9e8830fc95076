package vm_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilex-lang/ilex/internal/compiler"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/preludelib"
	"github.com/ilex-lang/ilex/internal/vm"
)

// compileAndRun compiles source as a script living in dir (so relative
// `use` statements resolve), runs it, and returns everything it printed.
func compileAndRun(t *testing.T, source, dir string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	m := vm.New(vm.WithOutput(&out))
	preludelib.Install(m)

	absPath := filepath.Join(dir, "main.ilex")
	scriptHandle := m.Heap().NewScript(heap.ObjScript{
		Name:    "main.ilex",
		Dir:     dir,
		AbsPath: absPath,
	})

	fnHandle, err := compiler.Compile(m.Heap(), source, scriptHandle, "main.ilex")
	require.NoError(t, err, "compile error")

	_, runErr := m.Run(fnHandle)
	return out.String(), runErr
}

func TestArithmeticAndPrintln(t *testing.T) {
	out, err := compileAndRun(t, `println(1 + 2 * 3);`, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestSwitchFallthrough(t *testing.T) {
	src := `
	var n = 1;
	switch (n) {
		case 1:
			println("one");
			fallthrough;
		case 2:
			println("two");
		case 3:
			println("three");
	}
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", out)
}

func TestSwitchNoFallthroughStopsAtFirstMatch(t *testing.T) {
	src := `
	var n = 2;
	switch (n) {
		case 1:
			println("one");
		case 2:
			println("two");
		case 3:
			println("three");
	}
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "two\n", out)
}

func TestEnumNamesMethod(t *testing.T) {
	src := `
	enum Color { Red, Green, Blue }
	println(Color.names());
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "[Red, Green, Blue]\n", out)
}

func TestDefaultParameters(t *testing.T) {
	src := `
	fn greet(name, greeting = "hello") {
		println(greeting + " " + name);
	}
	greet("world");
	greet("there", "hi");
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello world\nhi there\n", out)
}

func TestWithFileReadsBackWhatWasWritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	src := `
	withFile ("` + filepath.ToSlash(path) + `", "w") as f {
	}
	println("done");
	`
	out, err := compileAndRun(t, src, dir)
	require.NoError(t, err)
	assert.Equal(t, "done\n", out)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestUseModuleExportsAreVisible(t *testing.T) {
	dir := t.TempDir()
	modSrc := `var greeting = "hi from module";`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.ilex"), []byte(modSrc), 0644))

	src := `
	use "greet.ilex" as greet;
	println(greet.greeting);
	`
	out, err := compileAndRun(t, src, dir)
	require.NoError(t, err)
	assert.Equal(t, "hi from module\n", out)
}

func TestClassInitAndMethod(t *testing.T) {
	src := `
	class Counter {
		var count;
		init(start) {
			this.count = start;
		}
		fn increment() {
			this.count = this.count + 1;
			return this.count;
		}
	}
	var c = Counter(10);
	println(c.increment());
	println(c.increment());
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "11\n12\n", out)
}

func TestClosureCapturesUpvalue(t *testing.T) {
	src := `
	fn makeCounter() {
		var count = 0;
		fn increment() {
			count = count + 1;
			return count;
		}
		return increment;
	}
	var next = makeCounter();
	println(next());
	println(next());
	println(next());
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	_, err := compileAndRun(t, `println(1 / 0);`, t.TempDir())
	require.Error(t, err)
}

func TestArrayBuiltinMethods(t *testing.T) {
	src := `
	var a = [1, 2, 3];
	a.push(4);
	println(a.length);
	println(a.contains(3));
	println(a.indexOf(2));
	`
	out, err := compileAndRun(t, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "4\ntrue\n1\n", out)
}
