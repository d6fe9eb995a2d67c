package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEntries(t *testing.T) {
	assert := assert.New(t)

	one, err := decodeEntries([]byte(`
entry_id: abc
title: Garage
data:
  manufacturer: ACME
  entities:
    - id: r1
      module: gpio
      platform: switch
      friendly_name: Pump
      data:
        gpioline: 17
`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal("abc", one[0].EntryId)
	require.Len(t, one[0].Data.Entities, 1)
	assert.Equal("Pump", one[0].Data.Entities[0].FriendlyName)
	assert.Equal(17, one[0].Data.Entities[0].Data["gpioline"])

	many, err := decodeEntries([]byte(`
- title: A
- title: B
`))
	require.NoError(t, err)
	assert.Len(many, 2)
	assert.Equal("B", many[1].Title)

	_, err = decodeEntries([]byte(""))
	assert.Error(err)
	_, err = decodeEntries([]byte("title: [unclosed"))
	assert.Error(err)
}
