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

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *StructuredError
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrCodeNotFound, "node pool not found"),
			want: "[NOT_FOUND] node pool not found",
		},
		{
			name: "with cause",
			err:  Wrap(ErrCodeExternalTool, "az group create failed", stderrors.New("exit status 1")),
			want: "[EXTERNAL_TOOL] az group create failed: exit status 1",
		},
		{
			name: "formatted",
			err:  Newf(ErrCodeInvalidRequest, "invalid replicas: %d", 1),
			want: "[INVALID_REQUEST] invalid replicas: 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeUnavailable, "cluster unreachable", cause)

	assert.True(t, stderrors.Is(err, cause))

	wrapped := fmt.Errorf("validate: %w", err)
	var se *StructuredError
	require.True(t, stderrors.As(wrapped, &se))
	assert.Equal(t, ErrCodeUnavailable, se.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodePrerequisite, CodeOf(New(ErrCodePrerequisite, "helm not found")))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeTimeout, "wait expired"))
	assert.Equal(t, ErrCodeTimeout, CodeOf(wrapped))
}

func TestIsCode(t *testing.T) {
	err := WrapWithContext(ErrCodeExternalTool, "terraform apply failed",
		stderrors.New("exit status 1"),
		map[string]any{"dir": "/tmp/ws"})

	assert.True(t, IsCode(err, ErrCodeExternalTool))
	assert.False(t, IsCode(err, ErrCodeTimeout))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeInternal))
}
