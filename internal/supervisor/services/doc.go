// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package services adapts long-running components to suture.Service.
//
// Components that already expose Serve(ctx) error, such as the journal
// event consumer, are added to the tree directly and need no wrapper.
package services
