package cmd

// DefaultConfigFilename describes the default forking configuration filename looked up in the working directory.
const DefaultConfigFilename = "multifork.json"

// weiPerEther is the exponent of the wei to ether conversion.
const weiPerEther = 18
