// Copyright 2025 Poiesic Systems
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

// Package forget removes documents from search visibility.
//
// Each document's embedding moves through three states:
//
//	Active --SoftDelete--> Inactive --HardDelete--> Gone
//	Active --HardDelete--> Gone
//
// A soft delete zeroes the vector and flags the document deleted while
// keeping both records. A hard delete erases them. Either way the index
// manager is told, so the id stops surfacing as a candidate before the
// next rebuild drops it from the index.
package forget
