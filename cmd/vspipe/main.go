// Command vspipe evaluates a VapourSynth script and writes the frames of
// one of its outputs to a file, stdout or an RTP stream.
package main

func main() {
	Execute()
}
