package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateIdentifier("A000000210637", "A"))
	require.Error(t, ValidateIdentifier("", "A"))
	require.Error(t, ValidateIdentifier("   ", "A"))
	require.Error(t, ValidateIdentifier("B000000210637", "A"))
	require.Error(t, ValidateIdentifier("A", "A"))
}

func TestProductURLDeterministic(t *testing.T) {
	t.Parallel()

	got := ProductURL(DefaultBaseURL, "A000000210637")
	require.Equal(t,
		"https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do?goodsNo=A000000210637",
		got,
	)
	require.Equal(t, got, ProductURL(DefaultBaseURL, "A000000210637"))
}
