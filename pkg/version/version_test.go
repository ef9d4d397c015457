// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr error
	}{
		{
			name:  "full version",
			input: "1.32.4",
			want:  Version{Major: 1, Minor: 32, Patch: 4, Precision: 3},
		},
		{
			name:  "v prefix",
			input: "v1.32.4",
			want:  Version{Major: 1, Minor: 32, Patch: 4, Precision: 3},
		},
		{
			name:  "two components",
			input: "1.32",
			want:  Version{Major: 1, Minor: 32, Precision: 2},
		},
		{
			name:  "single component",
			input: "570",
			want:  Version{Major: 570, Precision: 1},
		},
		{
			name:  "driver version",
			input: "570.133.20",
			want:  Version{Major: 570, Minor: 133, Patch: 20, Precision: 3},
		},
		{
			name:  "aks suffix preserved",
			input: "1.28.0-aks",
			want:  Version{Major: 1, Minor: 28, Patch: 0, Precision: 3, Extras: "-aks"},
		},
		{
			name:  "build metadata preserved",
			input: "1.28.0+build.7",
			want:  Version{Major: 1, Minor: 28, Patch: 0, Precision: 3, Extras: "+build.7"},
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ErrEmptyVersion,
		},
		{
			name:    "too many components",
			input:   "1.2.3.4",
			wantErr: ErrTooManyComponents,
		},
		{
			name:    "non numeric",
			input:   "1.x.3",
			wantErr: ErrNonNumeric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "1", MustParse("1").String())
	assert.Equal(t, "1.32", MustParse("1.32").String())
	assert.Equal(t, "1.32.4", MustParse("1.32.4-aks").String())
}

func TestEqualsOrNewer(t *testing.T) {
	tests := []struct {
		name  string
		v     string
		other string
		want  bool
	}{
		{name: "equal", v: "1.32.4", other: "1.32.4", want: true},
		{name: "newer patch", v: "1.32.5", other: "1.32.4", want: true},
		{name: "older patch", v: "1.32.3", other: "1.32.4", want: false},
		{name: "newer minor", v: "1.33.0", other: "1.32.9", want: true},
		{name: "older major", v: "1.32.4", other: "2.0.0", want: false},
		{name: "precision 2 matches any patch", v: "1.32", other: "1.32.9", want: true},
		{name: "precision 1 matches any minor", v: "570", other: "570.999.0", want: true},
		{name: "driver newer", v: "570.133.20", other: "550.54.15", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.v).EqualsOrNewer(MustParse(tt.other)))
		})
	}
}
