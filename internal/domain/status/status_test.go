package status

import "testing"

// TestParse проверяет разбор строковых статусов.
func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"submitted", StatusSubmitted, false},
		{"forwarded", StatusForwarded, false},
		{"completed", StatusCompleted, false},
		{"failed", StatusFailed, false},
		{"Submitted", "", true},
		{"deleted", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): ожидалась ошибка", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): неожиданная ошибка: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

// TestCanTransition проверяет полную матрицу переходов.
func TestCanTransition(t *testing.T) {
	all := []Status{StatusSubmitted, StatusForwarded, StatusCompleted, StatusFailed}

	legal := map[[2]Status]bool{
		{StatusSubmitted, StatusForwarded}: true,
		{StatusSubmitted, StatusFailed}:    true,
		{StatusForwarded, StatusCompleted}: true,
		{StatusForwarded, StatusFailed}:    true,
		{StatusFailed, StatusSubmitted}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, ожидалось %v", from, to, got, want)
			}
		}
	}
}

// TestCanTransition_SelfLoops проверяет, что повторный переход в тот же статус запрещён.
func TestCanTransition_SelfLoops(t *testing.T) {
	for _, s := range []Status{StatusSubmitted, StatusForwarded, StatusCompleted, StatusFailed} {
		if CanTransition(s, s) {
			t.Errorf("%s → %s не должен быть допустим", s, s)
		}
	}
}

// TestSourcesFor проверяет наборы статусов-источников для условного UPDATE.
func TestSourcesFor(t *testing.T) {
	tests := []struct {
		target Status
		want   []Status
	}{
		{StatusSubmitted, []Status{StatusFailed}},
		{StatusForwarded, []Status{StatusSubmitted}},
		{StatusCompleted, []Status{StatusForwarded}},
		{StatusFailed, []Status{StatusSubmitted, StatusForwarded}},
	}

	for _, tt := range tests {
		got := SourcesFor(tt.target)
		if len(got) != len(tt.want) {
			t.Errorf("SourcesFor(%s) = %v, ожидалось %v", tt.target, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SourcesFor(%s)[%d] = %s, ожидалось %s", tt.target, i, got[i], tt.want[i])
			}
		}
	}
}

// TestIsTerminal проверяет терминальность статусов.
func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusCompleted) {
		t.Error("completed должен быть терминальным")
	}
	for _, s := range []Status{StatusSubmitted, StatusForwarded, StatusFailed} {
		if IsTerminal(s) {
			t.Errorf("%s не должен быть терминальным", s)
		}
	}
}
