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

// weft is the operator CLI for the weft coordination substrate.
//
// Agents talk to weft through the stdio MCP server (weft-mcp); this
// binary covers everything that happens outside an agent session: the
// session-start hook, channel and agent administration, project links,
// secrets, and retention sweeps.
package main

func main() {
	Execute()
}
