package core

import "testing"

func TestSinkLoggerRoutesByLevel(t *testing.T) {
	var infoLines, errLines []string
	l := NewSinkLogger(LogConfig{Level: "info"},
		func(s string) { infoLines = append(infoLines, s) },
		func(s string) { errLines = append(errLines, s) },
	)

	l.Debugf("Route", "should be filtered")
	l.Infof("Route", "installed %d routes", 3)
	l.Errorf("Route", "boom")

	if len(infoLines) != 1 {
		t.Fatalf("info lines = %v, want 1", infoLines)
	}
	if len(errLines) != 1 {
		t.Fatalf("err lines = %v, want 1", errLines)
	}
	if infoLines[0] != "[INFO] [Route] installed 3 routes" {
		t.Fatalf("got %q", infoLines[0])
	}
	if errLines[0] != "[ERROR] [Route] boom" {
		t.Fatalf("got %q", errLines[0])
	}
}

func TestSinkLoggerComponentOverride(t *testing.T) {
	var lines []string
	l := NewSinkLogger(LogConfig{Level: "warn", Components: map[string]string{"route": "debug"}},
		func(s string) { lines = append(lines, s) },
		func(s string) { lines = append(lines, s) },
	)

	l.Debugf("Route", "visible because component override")
	l.Debugf("Helper", "filtered by global warn level")

	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1", lines)
	}
}

func TestSinkLoggerNilSinkDropsLine(t *testing.T) {
	l := NewSinkLogger(LogConfig{}, nil, nil)
	l.Infof("Route", "should not panic")
	l.Errorf("Route", "should not panic either")
}
