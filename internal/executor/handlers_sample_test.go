package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserHandler_Success(t *testing.T) {
	result, err := createUserHandler(context.Background(), `{"name":"alice"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"userId":"u-123"}`, result)
}

func TestCreateUserHandler_FailPermanent(t *testing.T) {
	_, err := createUserHandler(context.Background(), `{"failPermanent":true}`)
	require.Error(t, err)
	f := AsFailure(err)
	assert.Equal(t, Permanent, f.Kind)
	assert.Equal(t, "Invariant broken", f.Message)
}

func TestCreateUserHandler_FailTransient(t *testing.T) {
	_, err := createUserHandler(context.Background(), `{"failTransient":true}`)
	require.Error(t, err)
	f := AsFailure(err)
	assert.Equal(t, Transient, f.Kind)
	assert.Equal(t, "Downstream timeout", f.Message)
}

func TestPlaceOrderHandler_Success(t *testing.T) {
	result, err := placeOrderHandler(context.Background(), `{"orderId":"o-1","quantity":3,"price":"9.50"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"o-1","total":"28.50"}`, result)
}

func TestPlaceOrderHandler_InvalidPriceIsPermanent(t *testing.T) {
	_, err := placeOrderHandler(context.Background(), `{"orderId":"o-1","quantity":3,"price":"not-a-number"}`)
	require.Error(t, err)
	assert.Equal(t, Permanent, AsFailure(err).Kind)
}

func TestPlaceOrderHandler_NonPositiveQuantityIsRetryableBusiness(t *testing.T) {
	_, err := placeOrderHandler(context.Background(), `{"orderId":"o-1","quantity":0,"price":"9.50"}`)
	require.Error(t, err)
	assert.Equal(t, RetryableBusiness, AsFailure(err).Kind)
}

func TestPlaceOrderHandler_MalformedPayloadIsPermanent(t *testing.T) {
	_, err := placeOrderHandler(context.Background(), `not json`)
	require.Error(t, err)
	assert.Equal(t, Permanent, AsFailure(err).Kind)
}
