package stations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{raw: "normal", want: StatusNormal},
		{raw: "warning", want: StatusWarning},
		{raw: "error", want: StatusError},
		{raw: "maintenance", want: StatusMaintenance},
		{raw: "Normal", wantErr: true},
		{raw: "broken", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidStatus))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusesIsACopy(t *testing.T) {
	list := Statuses()
	list[0] = "mutated"
	assert.Equal(t, StatusNormal, Statuses()[0])
	assert.Equal(t, []string{"normal", "warning", "error", "maintenance"}, StatusStrings())
}
