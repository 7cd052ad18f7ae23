/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package store

import "embed"

//go:embed migrations/*.sql
var MigrationsFS embed.FS
