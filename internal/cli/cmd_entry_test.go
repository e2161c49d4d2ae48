package cli_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/tddb/internal/cli"
)

func Test_Write_Then_Read_Returns_Value_When_Device_Is_New(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "aa:bb:cc")

	// Values are stored in whole words.
	if got, want := c.MustRun("read", addrA, "direct", "0"), "aabbcc00"; got != want {
		t.Fatalf("read = %q, want %q", got, want)
	}

	if got, want := c.MustRun("read", addrA, "direct", "0", "--size", "3"), "aabbcc"; got != want {
		t.Fatalf("read --size 3 = %q, want %q", got, want)
	}

	if got, want := c.MustRun("exists", addrA), "true"; got != want {
		t.Fatalf("exists = %q, want %q", got, want)
	}

	if got, want := c.MustRun("exists", addrA, "gatt", "0"), "false"; got != want {
		t.Fatalf("exists gatt = %q, want %q", got, want)
	}
}

func Test_Read_Fails_With_Result_Code_When_Size_Mismatches(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "aabbcc")

	stderr := c.MustFail("read", addrA, "direct", "0", "--size", "8")
	cli.AssertContains(t, stderr, "read failed")
}

func Test_Read_Fails_With_No_Device_When_Address_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "aabb")

	stderr := c.MustFail("read", addrB, "direct", "0")
	cli.AssertContains(t, stderr, "no device")
}

func Test_Write_Rejects_Bad_Arguments_When_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "MissingValue", args: []string{"write", addrA, "direct", "0"}, want: "missing arguments"},
		{name: "BadAddress", args: []string{"write", "nope", "direct", "0", "aa"}, want: "parse address"},
		{name: "BadSource", args: []string{"write", addrA, "bogus", "0", "aa"}, want: "parse source"},
		{name: "BadKey", args: []string{"write", addrA, "direct", "x", "aa"}, want: "parse key"},
		{name: "BadHex", args: []string{"write", addrA, "direct", "0", "zz"}, want: "parse hex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stderr := c.MustFail(tt.args...)
			cli.AssertContains(t, stderr, tt.want)
		})
	}
}

func Test_Read_By_Rank_Prints_Address_When_Rank_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "0a0b")
	c.MustRun("write", addrB, "direct", "0", "0c0d")

	// New devices take the least recently used rank.
	if got, want := c.MustRun("read", "--rank", "1", "direct", "0"), addrB+"/public 0c0d"; got != want {
		t.Fatalf("read --rank 1 = %q, want %q", got, want)
	}

	c.MustRun("prio", addrB)

	if got, want := c.MustRun("read", "--rank", "1", "direct", "0", "--size", "2"), addrA+"/public 0a0b"; got != want {
		t.Fatalf("read --rank 1 --size 2 after prio = %q, want %q", got, want)
	}
}

func Test_Rm_Deletes_Entry_Then_Device_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "aabb")
	c.MustRun("rm", addrA, "direct", "0")

	if got, want := c.MustRun("exists", addrA, "direct", "0"), "false"; got != want {
		t.Fatalf("exists after rm entry = %q, want %q", got, want)
	}

	if got, want := c.MustRun("exists", addrA), "true"; got != want {
		t.Fatalf("device exists after rm entry = %q, want %q", got, want)
	}

	c.MustRun("rm", addrA)

	if got, want := c.MustRun("count"), "0"; got != want {
		t.Fatalf("count after rm = %q, want %q", got, want)
	}
}

func Test_Rm_Fails_When_Device_Has_Priority(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "aabb")
	c.MustRun("prio", addrA, "--set")

	stderr := c.MustFail("rm", addrA)
	cli.AssertContains(t, stderr, "delete failed")

	c.MustRun("prio", addrA, "--clear")
	c.MustRun("rm", addrA)
}

func Test_Ls_Orders_By_Recency_When_Devices_Are_Prioritised(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "01")
	c.MustRun("write", addrB, "direct", "0", "02")
	c.MustRun("write", addrC, "direct", "0", "03")
	c.MustRun("prio", addrC)

	got := strings.Split(c.MustRun("ls"), "\n")
	want := []string{
		" 0  " + addrC + "/public",
		" 1  " + addrA + "/public",
		" 2  " + addrB + "/public",
	}

	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ls =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	out := c.MustRun("ls", "--limit", "1")
	cli.AssertContains(t, out, "(1 of 3 devices)")
}

func Test_Prio_Rejects_Conflicting_Flags_When_Set_And_Clear(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "01")

	stderr := c.MustFail("prio", addrA, "--set", "--clear")
	cli.AssertContains(t, stderr, "mutually exclusive")
}

func Test_Wipe_Keeps_Priority_Devices_When_Asked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("write", addrA, "direct", "0", "01")
	c.MustRun("write", addrB, "direct", "0", "02")
	c.MustRun("prio", addrA, "--set")

	if got, want := c.MustRun("wipe", "--keep-priority"), "1 devices left"; got != want {
		t.Fatalf("wipe --keep-priority = %q, want %q", got, want)
	}

	if got, want := c.MustRun("exists", addrA), "true"; got != want {
		t.Fatalf("priority device exists = %q, want %q", got, want)
	}

	if got, want := c.MustRun("wipe"), "0 devices left"; got != want {
		t.Fatalf("wipe = %q, want %q", got, want)
	}
}

func Test_Write_Evicts_Least_Recent_When_Directory_Full(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--max-devices", "2", "write", addrA, "direct", "0", "01")
	c.MustRun("--max-devices", "2", "write", addrB, "direct", "0", "02")
	c.MustRun("--max-devices", "2", "write", addrC, "direct", "0", "03")

	// B was added last, so it holds the least recently used rank.
	if got, want := c.MustRun("--max-devices", "2", "exists", addrB), "false"; got != want {
		t.Fatalf("evicted device exists = %q, want %q", got, want)
	}

	if got, want := c.MustRun("--max-devices", "2", "exists", addrA), "true"; got != want {
		t.Fatalf("kept device exists = %q, want %q", got, want)
	}

	if got, want := c.MustRun("--max-devices", "2", "count"), "2"; got != want {
		t.Fatalf("count = %q, want %q", got, want)
	}
}
