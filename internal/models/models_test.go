package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

func TestParseEvaluationType(t *testing.T) {
	got, err := ParseEvaluationType(" practica ")
	require.NoError(t, err)
	assert.Equal(t, EvaluationPractice, got)

	_, err = ParseEvaluationType("QUIZ")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidEnum))
}

func TestParseUserRole(t *testing.T) {
	cases := map[string]UserRole{
		"admin":      RoleAdmin,
		"TEACHER":    RoleTeacher,
		"Docente":    RoleTeacher,
		"estudiante": RoleStudent,
	}
	for raw, want := range cases {
		got, err := ParseUserRole(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseUserRole("SUPERADMIN")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidEnum))
	assert.False(t, UserRole("SUPERADMIN").Valid())
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "García Torres, Ana", Student{FirstNames: "Ana", LastNames: "García Torres"}.FullName())
	assert.Equal(t, "Carlos", Teacher{FirstNames: "Carlos"}.FullName())
}

func TestClassifyAverage(t *testing.T) {
	cases := []struct {
		average float64
		want    AcademicStatus
	}{
		{20, StatusExcellent},
		{18, StatusExcellent},
		{17.99, StatusVeryGood},
		{16, StatusVeryGood},
		{15.99, StatusGood},
		{14, StatusGood},
		{13.99, StatusFair},
		{11, StatusFair},
		{10.99, StatusFailed},
		{0, StatusFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyAverage(tc.average), "average %.2f", tc.average)
	}
	assert.True(t, Passes(11))
	assert.False(t, Passes(10.99))
}

func TestParseExportFormat(t *testing.T) {
	got, err := ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportCSV, got)

	got, err = ParseExportFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, ExportPDF, got)

	_, err = ParseExportFormat("xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidEnum))
}
