package wsweb

import (
	"bytes"
	"io"
	"testing"

	"gotest.tools/v3/assert"
)

//echo writes in to conn and verifies the same bytes are read back.
func echo(t testing.TB, in io.Reader, conn io.ReadWriter) {
	t.Helper()
	var verifyBuf bytes.Buffer
	in = io.TeeReader(in, &verifyBuf)

	//Write
	n, err := io.CopyBuffer(conn, in, make([]byte, 1024))
	assert.NilError(t, err, "Write/Copy to echo server failed")

	//Read
	var readBuf bytes.Buffer
	_, err = readBuf.ReadFrom(&io.LimitedReader{R: conn, N: n})
	assert.NilError(t, err, "Read from echo server failed")

	//Verify
	assert.Equal(t, readBuf.String(), verifyBuf.String())
}

const testMsg = `Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Senectus et netus et malesuada fames ac turpis. Eget magna fermentum iaculis eu non. Sed tempus urna et pharetra pharetra. Eu scelerisque felis imperdiet proin fermentum. Pulvinar proin gravida hendrerit lectus a. Augue ut lectus arcu bibendum. Id porta nibh venenatis cras sed felis eget velit aliquet. Viverra accumsan in nisl nisi scelerisque eu ultrices. Ut tristique et egestas quis ipsum suspendisse ultrices. Diam volutpat commodo sed egestas egestas fringilla phasellus faucibus scelerisque. Dolor sit amet consectetur adipiscing elit ut aliquam.

Bibendum neque egestas congue quisque egestas diam in arcu cursus. Consectetur adipiscing elit duis tristique sollicitudin nibh sit amet commodo. Elit eget gravida cum sociis natoque penatibus. Vitae auctor eu augue ut lectus arcu bibendum at varius. Mi tempus imperdiet nulla malesuada pellentesque elit eget gravida cum. Lectus arcu bibendum at varius vel pharetra vel turpis. Dui faucibus in ornare quam viverra orci. Aenean euismod elementum nisi quis eleifend quam adipiscing.`
