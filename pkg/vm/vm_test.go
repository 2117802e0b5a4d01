package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run interprets source against a fresh VM and returns whatever it printed
// to stdout. Observable VM behavior is what the guest program prints or the
// error it raises — there's no stack-top accessor to peek at, same as a
// real clox build.
func run(t *testing.T, source string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	vm := New(&stdout, &stderr, false, false)
	ok, err := vm.Interpret(source)
	if !ok && err == nil {
		t.Fatalf("compile error: %s", stderr.String())
	}
	return stdout.String(), err
}

func runOK(t *testing.T, source string) string {
	t.Helper()
	out, err := run(t, source)
	require.NoError(t, err)
	return out
}

func TestInterpretNumberLiteral(t *testing.T) {
	assert.Equal(t, "42\n", runOK(t, "print 42;"))
}

func TestInterpretStringLiteral(t *testing.T) {
	assert.Equal(t, "hello\n", runOK(t, `print "hello";`))
}

func TestInterpretBooleanAndNil(t *testing.T) {
	assert.Equal(t, "true\nfalse\nnil\n", runOK(t, "print true; print false; print nil;"))
}

func TestInterpretArithmetic(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print 3 + 4;", "7\n"},
		{"print 10 - 3;", "7\n"},
		{"print 3 * 4;", "12\n"},
		{"print 12 / 3;", "4\n"},
		{`print "foo" + "bar";`, "foobar\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), tt.source)
	}
}

func TestInterpretComparison(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print 3 < 4;", "true\n"},
		{"print 4 < 3;", "false\n"},
		{"print 3 > 4;", "false\n"},
		{"print 3 == 3;", "true\n"},
		{"print 3 != 4;", "true\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), tt.source)
	}
}

func TestInterpretGlobalVariables(t *testing.T) {
	assert.Equal(t, "42\n", runOK(t, "var x = 42; print x;"))
}

func TestInterpretLocalVariablesAndBlockScope(t *testing.T) {
	assert.Equal(t, "30\n", runOK(t, "{ var x = 10; var y = 20; print x + y; }"))
}

func TestInterpretIfElse(t *testing.T) {
	assert.Equal(t, "yes\n", runOK(t, `if (1 < 2) { print "yes"; } else { print "no"; }`))
}

func TestInterpretWhileLoop(t *testing.T) {
	assert.Equal(t, "0\n1\n2\n", runOK(t, `
		var i = 0;
		while (i < 3) { print i; i = i + 1; }
	`))
}

func TestInterpretForLoop(t *testing.T) {
	assert.Equal(t, "0\n1\n2\n", runOK(t, `
		for (var i = 0; i < 3; i = i + 1) { print i; }
	`))
}

func TestInterpretFunctionCallAndReturn(t *testing.T) {
	assert.Equal(t, "10\n", runOK(t, `
		fun double(x) { return x * 2; }
		print double(5);
	`))
}

func TestInterpretClosureCapturesUpvalue(t *testing.T) {
	assert.Equal(t, "1\n2\n", runOK(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
	`))
}

func TestInterpretClassInstanceAndMethod(t *testing.T) {
	assert.Equal(t, "Crunch crunch crunch!\n", runOK(t, `
		class Scone {
			topping(first, second) {
				print first + " crunch " + second + "!";
			}
		}
		var s = Scone();
		s.topping("Crunch", "crunch");
	`))
}

func TestInterpretInheritanceAndSuper(t *testing.T) {
	assert.Equal(t, "Fry until golden brown.\nPipe full of custard and coat with chocolate.\n", runOK(t, `
		class Doughnut {
			cook() { print "Fry until golden brown."; }
		}
		class BostonCream extends Doughnut {
			cook() {
				super.cook();
				print "Pipe full of custard and coat with chocolate.";
			}
		}
		BostonCream().cook();
	`))
}

func TestInterpretClassInitializer(t *testing.T) {
	assert.Equal(t, "3\n", runOK(t, `
		class Pair {
			init(a, b) { this.a = a; this.b = b; }
			sum() { return this.a + this.b; }
		}
		print Pair(1, 2).sum();
	`))
}

func TestInterpretClockNativeReturnsNumber(t *testing.T) {
	assert.Equal(t, "true\n", runOK(t, "print clock() >= 0;"))
}

func TestInterpretUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, "print nope;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable")
}

func TestInterpretStackTraceOnRuntimeError(t *testing.T) {
	_, err := run(t, `
		fun a() { b(); }
		fun b() { c(); }
		fun c() { print nope; }
		a();
	`)
	require.Error(t, err)
	rtErr, ok := err.(*RuntimeError)
	require.True(t, ok)
	require.Len(t, rtErr.StackTrace, 4)
	assert.Equal(t, "c()", rtErr.StackTrace[0].Name)
	assert.Equal(t, "b()", rtErr.StackTrace[1].Name)
	assert.Equal(t, "a()", rtErr.StackTrace[2].Name)
	assert.Equal(t, "<script>", rtErr.StackTrace[3].Name)
}

func TestInterpretStressGCDoesNotCorruptState(t *testing.T) {
	var stdout, stderr bytes.Buffer
	vm := New(&stdout, &stderr, true, false)
	ok, err := vm.Interpret(`
		fun makeChain(n) {
			if (n == 0) return "done";
			var s = "node " + makeChain(n - 1);
			return s;
		}
		print makeChain(50);
	`)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "done")
}

// TestInterpretStressGCDuringCompilationKeepsFunctionsAlive exercises the
// compiler/collector seam directly: with stress mode on, every newly
// interned identifier triggers a full collection while compiler.Compile is
// still running, well before any of these nested functions are wrapped in
// a closure or reachable from the VM's stack. If the compiler's active
// funcState chain weren't rooted during that window, one of these
// still-being-compiled Functions and the strings in its chunk would be
// swept and dropped from the intern pool, so a later use of the same
// global name would intern a different String and fail to find the global.
func TestInterpretStressGCDuringCompilationKeepsFunctionsAlive(t *testing.T) {
	var stdout, stderr bytes.Buffer
	vm := New(&stdout, &stderr, true, false)
	ok, err := vm.Interpret(`
		fun outerOne() {
			var innerLocalOne = "alpha";
			fun innerOne() {
				var deeplyNestedOne = "bravo";
				return innerLocalOne + deeplyNestedOne;
			}
			return innerOne();
		}
		fun outerTwo() {
			var innerLocalTwo = "charlie";
			fun innerTwo() {
				var deeplyNestedTwo = "delta";
				return innerLocalTwo + deeplyNestedTwo;
			}
			return innerTwo();
		}
		print outerOne();
		print outerTwo();
	`)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "alphabravo\ncharliedelta\n", stdout.String())
}
