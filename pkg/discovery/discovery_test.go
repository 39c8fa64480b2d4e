package discovery

import (
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func TestBrokerTXTRoundTrip(t *testing.T) {
	info := &BrokerInfo{InstanceName: "lab-broker", Port: 8765, Version: "1.2.0", SessionID: "s-42"}

	strs := TXTRecordsToStrings(EncodeBrokerTXT(info))
	want := []string{"path=/bus", "sid=s-42", "ver=1.2.0"}
	if !reflect.DeepEqual(strs, want) {
		t.Errorf("TXT: got %v, want %v", strs, want)
	}

	var svc BrokerService
	DecodeBrokerTXT(StringsToTXTRecords(strs), &svc)
	if svc.Path != "/bus" || svc.Version != "1.2.0" || svc.SessionID != "s-42" {
		t.Errorf("decoded: got %+v", svc)
	}
}

func TestStringsToTXTRecordsFlags(t *testing.T) {
	txt := StringsToTXTRecords([]string{"flag", "k=v=w", ""})
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag: got %q, %v", v, ok)
	}
	if txt["k"] != "v=w" {
		t.Errorf("k: got %q, want %q", txt["k"], "v=w")
	}
	if len(txt) != 2 {
		t.Errorf("len: got %d, want 2", len(txt))
	}
}

func TestBrokerInfoValidate(t *testing.T) {
	tests := []struct {
		name string
		info BrokerInfo
		want error
	}{
		{"ok", BrokerInfo{InstanceName: "b", Port: 1}, nil},
		{"empty name", BrokerInfo{Port: 1}, ErrInstanceNameTooLong},
		{"long name", BrokerInfo{InstanceName: strings.Repeat("x", 64), Port: 1}, ErrInstanceNameTooLong},
		{"no port", BrokerInfo{InstanceName: "b"}, ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEntryToBroker(t *testing.T) {
	entry := &zeroconf.ServiceEntry{}
	entry.Instance = "lab-broker"
	entry.HostName = "lab.local."
	entry.Port = 8765
	entry.Text = []string{"path=/bus", "sid=s-1"}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.0.2.10")}
	entry.AddrIPv6 = []net.IP{net.ParseIP("2001:db8::10")}

	svc := entryToBroker(entry)
	if svc.SessionID != "s-1" {
		t.Errorf("SessionID: got %q, want %q", svc.SessionID, "s-1")
	}
	if got, want := svc.URL(), "ws://192.0.2.10:8765/bus"; got != want {
		t.Errorf("URL: got %q, want %q", got, want)
	}

	svc.Addresses = []string{"2001:db8::10"}
	if got, want := svc.URL(), "ws://[2001:db8::10]:8765/bus"; got != want {
		t.Errorf("URL: got %q, want %q", got, want)
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
