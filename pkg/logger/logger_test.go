package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerText(t *testing.T) {
	Convey("Given a text logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Named("feed").Info(ctx, "connected",
				String("endpoint", "ws://x"),
				Int("attempt", 2),
				Bool("ok", true),
				Duration("delay", time.Second),
				Error(errors.New("boom")),
			)
			out := buf.String()

			Convey("Then the fields and component are rendered", func() {
				So(out, ShouldContainSubstring, "msg=connected")
				So(out, ShouldContainSubstring, "component=feed")
				So(out, ShouldContainSubstring, "endpoint=ws://x")
				So(out, ShouldContainSubstring, "attempt=2")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When names are nested", func() {
			Named("service").Named("feed").Info(ctx, "connected")
			out := buf.String()

			Convey("Then one dotted component is rendered", func() {
				So(out, ShouldContainSubstring, "component=service.feed")
				So(strings.Count(out, "component="), ShouldEqual, 1)
			})
		})

		Convey("When debug is disabled", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	Convey("Given a json logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithOutput(&buf)), ShouldBeNil)

		Get().Warn(context.Background(), "queue full", Int64("size", 10))

		Convey("Then each record is a json object", func() {
			var rec map[string]any
			So(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec), ShouldBeNil)
			So(rec["msg"], ShouldEqual, "queue full")
			So(rec["level"], ShouldEqual, "WARN")
			So(rec["size"], ShouldEqual, float64(10))
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		So(Init(), ShouldBeNil)

		So(SetLevelString("debug"), ShouldBeNil)
		So(SetLevelString("WARNING"), ShouldBeNil)
		So(SetLevelString(" error "), ShouldBeNil)
		So(SetLevelString(""), ShouldBeNil)
		So(SetLevelString("verbose"), ShouldNotBeNil)
	})
}
