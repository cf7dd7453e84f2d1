// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectIDFromPathDeterministic(t *testing.T) {
	id1 := ProjectIDFromPath("/home/user/projects/api")
	id2 := ProjectIDFromPath("/home/user/projects/api")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
	assert.True(t, IsProjectID(id1))
}

func TestProjectIDFromPathSameBasenameDiffers(t *testing.T) {
	a := ProjectIDFromPath("/home/user/projects/api")
	b := ProjectIDFromPath("/srv/other/api")
	assert.NotEqual(t, a, b, "same basename must not collide")
}

func TestProjectIDFromPathCleansTrailingSlash(t *testing.T) {
	a := ProjectIDFromPath("/home/user/projects/api/")
	b := ProjectIDFromPath("/home/user/projects/api")
	assert.Equal(t, a, b)
}

func TestProjectNameFromPath(t *testing.T) {
	assert.Equal(t, "api", ProjectNameFromPath("/home/user/projects/api"))
	assert.Equal(t, "api", ProjectNameFromPath("/home/user/projects/api/"))
}
