package verdict

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Value
	}{
		{"none", None},
		{"pass", Pass},
		{"inconclusive", Inconclusive},
		{"fail", Fail},
		{"aborted", Aborted},
		{"error", Error},
		{"PASS", Pass},
		{" fail ", Fail},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, input := range []string{"", "ok", "passed", "warning"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); !errors.Is(err, ErrUnknownValue) {
				t.Errorf("Parse(%q) error = %v, want ErrUnknownValue", input, err)
			}
		})
	}
}

func TestOrder(t *testing.T) {
	values := Values()
	for i := 1; i < len(values); i++ {
		if values[i-1].Rank() >= values[i].Rank() {
			t.Errorf("%v should rank below %v", values[i-1], values[i])
		}
	}
}

func TestUpdate_NeverDecreases(t *testing.T) {
	v := New()
	if err := v.Update(Fail, "bad response code"); err != nil {
		t.Fatal(err)
	}
	if err := v.Update(Pass, "looks fine"); err != nil {
		t.Fatal(err)
	}

	if v.Value() != Fail {
		t.Errorf("Value() = %v, want %v", v.Value(), Fail)
	}
	if v.Message() != "bad response code" {
		t.Errorf("Message() = %q, want %q", v.Message(), "bad response code")
	}
}

func TestUpdate_EqualRankReplacesMessage(t *testing.T) {
	v := New(Pass)
	_ = v.Update(Pass, "first")
	_ = v.Update(Pass, "second")

	if v.Message() != "second" {
		t.Errorf("Message() = %q, want %q", v.Message(), "second")
	}
}

func TestUpdate_RejectsUnknown(t *testing.T) {
	v := New(Inconclusive)
	err := v.Update(Value(42), "bogus")
	if !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("Update error = %v, want ErrUnknownValue", err)
	}
	if v.Value() != Inconclusive {
		t.Errorf("Value() = %v, want unchanged %v", v.Value(), Inconclusive)
	}

	if err := v.UpdateToken("great", "bogus"); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("UpdateToken error = %v, want ErrUnknownValue", err)
	}
}

func TestUpdate_ResultIsMaxOfSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		v := New()
		want := None
		n := rng.Intn(8)
		for i := 0; i < n; i++ {
			next := Value(rng.Intn(len(valueNames)))
			_ = v.Update(next, next.String())
			want = Max(want, next)
		}
		if v.Value() != want {
			t.Fatalf("round %d: Value() = %v, want %v", round, v.Value(), want)
		}
	}
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"verdict": Inconclusive})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"verdict":"inconclusive"}` {
		t.Errorf("got %s", data)
	}

	var out map[string]Value
	if err := json.Unmarshal([]byte(`{"verdict":"aborted"}`), &out); err != nil {
		t.Fatal(err)
	}
	if out["verdict"] != Aborted {
		t.Errorf("got %v, want %v", out["verdict"], Aborted)
	}
}

func TestNew_IgnoresUnknownInitial(t *testing.T) {
	if got := New(Value(99)).Value(); got != None {
		t.Errorf("got %v, want %v", got, None)
	}
}
