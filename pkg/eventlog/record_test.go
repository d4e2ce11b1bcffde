package eventlog

import (
	"testing"
	"time"

	"github.com/itohio/aspol/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Record
		wantErr bool
	}{
		{
			name: "dated",
			line: "07/03/2024,14:05:09,54.687157,-25.279652,1013.26\n",
			want: Record{At: time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC), Lat: 54.687157, Lng: -25.279652, Value: 1013.26},
		},
		{
			name: "no clock",
			line: "unavailable,unavailable,1.000000,2.000000,3.50",
			want: Record{Lat: 1, Lng: 2, Value: 3.5},
		},
		{name: "short", line: "07/03/2024,14:05:09,54.68", wantErr: true},
		{name: "bad date", line: "32/13/2024,14:05:09,1,2,3", wantErr: true},
		{name: "bad value", line: "07/03/2024,14:05:09,1,2,x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_LineParses(t *testing.T) {
	r := Record{At: time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC), Lat: -33.868820, Lng: 151.209296, Value: 7.25}
	got, err := ParseRecord(r.Line())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestReadRecords_SkipsTornLines(t *testing.T) {
	vol := storage.NewDir(t.TempDir())
	content := "07/03/2024,14:05:09,1.000000,2.000000,3.00\n" +
		"\n" +
		"07/03/2024,14:05:10,1.000000,2.000000,4.00\n" +
		"07/03/2024,14:05"
	require.NoError(t, storage.WriteFile(vol, FlowFile, []byte(content)))

	records, skipped, err := ReadRecords(vol, FlowFile)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, skipped)
}

func TestReadRecords_NoStorage(t *testing.T) {
	_, _, err := ReadRecords(storage.Unmounted{}, FlowFile)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
